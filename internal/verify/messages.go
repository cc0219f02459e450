package verify

// operatorMessages are shown on the door terminal next to the decision.
var operatorMessages = map[Reason]string{
	ReasonOK:                "Admit",
	ReasonMalformed:         "Pass not recognised. Ask the guest to refresh their pass.",
	ReasonStaleClock:        "Pass issued in the future. Report to the venue manager.",
	ReasonExpired:           "Pass expired. Ask the guest to refresh their pass.",
	ReasonUsed:              "Pass already used.",
	ReasonLocked:            "Pass locked. Guest balance is below the venue minimum.",
	ReasonHealthRequired:    "Health status not shared. Check manually before admitting.",
	ReasonVenueMismatch:     "Pass issued for another venue. Check before admitting.",
	ReasonAuditWriteFailure: "Scan could not be recorded. Scan again.",
	ReasonTimeout:           "Verification timed out. Scan again.",
	ReasonUnavailable:       "Verification unavailable. Scan again shortly.",
}

func messageFor(reason Reason) string {
	if m, ok := operatorMessages[reason]; ok {
		return m
	}
	return "Do not admit."
}
