// Command passgen is the operator toolbox: it provisions station keys and
// mints or inspects door-pass payloads against a local or shared backend.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"ghostpass/internal/balance/notify"
	balanceservice "ghostpass/internal/balance/service"
	balancestore "ghostpass/internal/balance/store"
	"ghostpass/internal/platform/config"
	"ghostpass/internal/platform/logger"
	"ghostpass/internal/platform/redis"
	"ghostpass/internal/token/codec"
	"ghostpass/internal/token/models"
	"ghostpass/internal/token/rotation"
	tokenservice "ghostpass/internal/token/service"
	"ghostpass/internal/token/signer"
	id "ghostpass/pkg/domain"
	"ghostpass/pkg/secrets"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "station-key":
		err = stationKey(os.Stdout, os.Args[2:])
	case "mint":
		err = mint(os.Stdout, os.Args[2:])
	case "display":
		err = display(os.Stdout, os.Args[2:])
	case "inspect":
		err = inspect(os.Stdout, os.Args[2:])
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `passgen - ghostpass operator toolbox

Usage:
  passgen station-key --station door-1
  passgen mint --subject <uuid> [--mode standard|incognito_master] [--balance 20.00] [--identity --payment --health]
  passgen display --subject <uuid> [--for 2m] [...mint flags]
  passgen inspect <payload>

mint and display read GHOSTPASS_* settings (see --env-file). With REDIS_URL
set they use the shared balance gate and key epochs; otherwise an in-memory
gate seeded from --balance.
`)
}

// stationKey prints a fresh terminal key and the hash entry for the station keys file.
func stationKey(w io.Writer, args []string) error {
	fs := pflag.NewFlagSet("station-key", pflag.ContinueOnError)
	station := fs.String("station", "", "station ID the key is provisioned for")
	if err := fs.Parse(args); err != nil {
		return err
	}
	stationID, err := id.ParseStationID(*station)
	if err != nil {
		return err
	}

	key, err := secrets.GenerateKey()
	if err != nil {
		return err
	}
	hash, err := secrets.Hash(key)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# terminal key for %s (configure on the device, shown once)\n", stationID)
	fmt.Fprintf(w, "# %s\n", key)
	fmt.Fprintf(w, "stations:\n  %s: %q\n", stationID, hash)
	return nil
}

type mintFlags struct {
	fs         *pflag.FlagSet
	envFile    *string
	subject    *string
	mode       *string
	venue      *string
	balance    *string
	identity   *bool
	payment    *bool
	health     *bool
	idDocument *bool
}

func newMintFlags(name string) *mintFlags {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	return &mintFlags{
		fs:         fs,
		envFile:    fs.String("env-file", ".env", "dotenv file loaded before the environment is parsed"),
		subject:    fs.String("subject", "", "subject ID (UUID)"),
		mode:       fs.String("mode", string(models.ModeStandard), "standard or incognito_master"),
		venue:      fs.String("venue", "", "bind the token to a venue ID (UUID)"),
		balance:    fs.String("balance", "20.00", "balance seeded into the in-memory gate"),
		identity:   fs.Bool("identity", true, "disclose identity"),
		payment:    fs.Bool("payment", false, "disclose payment"),
		health:     fs.Bool("health", false, "disclose health"),
		idDocument: fs.Bool("id-document", false, "disclose the ID document reference"),
	}
}

func (f *mintFlags) request() (tokenservice.MintRequest, error) {
	subject, err := id.ParseSubjectID(*f.subject)
	if err != nil {
		return tokenservice.MintRequest{}, err
	}
	req := tokenservice.MintRequest{
		SubjectID: subject,
		Mode:      models.Mode(*f.mode),
		Bundle: models.Bundle{
			Identity:   *f.identity,
			Payment:    *f.payment,
			Health:     *f.health,
			IDDocument: *f.idDocument,
		},
	}
	if *f.venue != "" {
		venue, err := id.ParseVenueID(*f.venue)
		if err != nil {
			return tokenservice.MintRequest{}, err
		}
		req.VenueID = &venue
	}
	return req, nil
}

type minter struct {
	service  *tokenservice.Service
	balances *balanceservice.Service
	close    func()
}

// newMinter wires the minter the way the server does, against Redis when
// configured and otherwise against a gate seeded with balance.
func newMinter(ctx context.Context, f *mintFlags, req tokenservice.MintRequest) (*minter, error) {
	cfg, err := config.Load(*f.envFile)
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.LogLevel)

	rc, err := redis.New(cfg.Redis)
	if err != nil {
		return nil, err
	}

	var (
		store  balanceservice.Store = balancestore.NewInMemory()
		broker notify.Broker        = notify.NewMemory()
		epochs signer.EpochStore    = signer.NewInMemoryEpochs()
		closer                      = func() {}
	)
	if rc != nil {
		store = balancestore.NewRedis(rc.Client)
		broker = notify.NewRedis(rc.Client, log)
		epochs = signer.NewRedisEpochs(rc.Client)
		closer = func() { _ = rc.Close() } //nolint:errcheck // process exit
	}

	sealer, err := signer.New([]byte(cfg.Token.SigningSecret), epochs)
	if err != nil {
		closer()
		return nil, err
	}
	balances := balanceservice.New(store, broker, cfg.Token.LockThreshold, balanceservice.WithLogger(log))
	if rc == nil {
		amount, err := decimal.NewFromString(*f.balance)
		if err != nil {
			return nil, fmt.Errorf("invalid balance: %w", err)
		}
		if _, err := balances.SetBalance(ctx, balanceservice.SetBalanceRequest{SubjectID: req.SubjectID, Balance: amount}); err != nil {
			return nil, err
		}
	}

	svc := tokenservice.New(balances, sealer,
		models.TTLPolicy{Standard: cfg.Token.StandardTTL, Master: cfg.Token.MasterTTL},
		tokenservice.WithLogger(log),
		tokenservice.WithRotationLead(cfg.Token.RotationLead),
	)
	return &minter{service: svc, balances: balances, close: closer}, nil
}

func mint(w io.Writer, args []string) error {
	f := newMintFlags("mint")
	if err := f.fs.Parse(args); err != nil {
		return err
	}
	req, err := f.request()
	if err != nil {
		return err
	}

	ctx := context.Background()
	m, err := newMinter(ctx, f, req)
	if err != nil {
		return err
	}
	defer m.close()

	res, err := m.service.Mint(ctx, req)
	if err != nil {
		return err
	}
	return writeJSON(w, tokenView(res.Token, res.Payload))
}

// display runs the bearer-side rotation loop and prints one line per frame.
func display(w io.Writer, args []string) error {
	f := newMintFlags("display")
	runFor := f.fs.Duration("for", 2*time.Minute, "stop after this long")
	if err := f.fs.Parse(args); err != nil {
		return err
	}
	req, err := f.request()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *runFor)
	defer cancel()

	m, err := newMinter(ctx, f, req)
	if err != nil {
		return err
	}
	defer m.close()

	d := rotation.NewDisplay(m.service, req, rotation.WithSubscriber(m.balances))
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	enc := json.NewEncoder(w)
	for frame := range d.Frames() {
		line := map[string]any{
			"state":  frame.State,
			"locked": frame.Locked,
			"mode":   frame.Mode,
		}
		if frame.Payload != "" {
			line["payload"] = frame.Payload
			line["expires_at"] = frame.ExpiresAt
		}
		if err := enc.Encode(line); err != nil {
			cancel()
			break
		}
	}
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// inspect decodes a payload without checking its signature.
func inspect(w io.Writer, args []string) error {
	fs := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("inspect takes exactly one payload")
	}
	tok, err := codec.Decode(fs.Arg(0))
	if err != nil {
		return err
	}
	out := tokenView(tok, "")
	out["key_epoch"] = tok.KeyEpoch
	out["signature_bytes"] = len(tok.Signature)
	return writeJSON(w, out)
}

func tokenView(t *models.Token, payload string) map[string]any {
	out := map[string]any{
		"nonce":      t.Nonce.String(),
		"subject_id": t.SubjectID.String(),
		"mode":       t.Mode,
		"bundle":     t.Bundle,
		"locked":     t.Locked,
		"consumable": t.Consumable,
		"issued_at":  t.IssuedAt,
		"expires_at": t.ExpiresAt,
	}
	if t.VenueID != nil {
		out["venue_id"] = t.VenueID.String()
	}
	if t.BalanceSnapshot != nil {
		out["balance_snapshot"] = t.BalanceSnapshot.StringFixed(2)
	}
	if payload != "" {
		out["payload"] = payload
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
