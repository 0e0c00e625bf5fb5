package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/umit144/license-sync/internal/client"
	"github.com/umit144/license-sync/internal/config"
	"github.com/umit144/license-sync/internal/logger"
	"go.uber.org/zap"
)

const usage = `usage: licensectl <command> [flags]

commands:
  verify -email E -key K     verify a license (uses the local cache when fresh)
  status [-refresh]          show the locally stored subscription
  reset                      forget the cached subscription and credentials
  fingerprint                print this installation's device fingerprint
  demo [-email E] [-plan P]  create a local test subscription (demo mode only)
  buy -email E -plan P       start a purchase and print the payment URL
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadClient(".env")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl := zap.NewNop()
	if os.Getenv("LICENSE_DEBUG") != "" {
		if zl, err = logger.New("dev"); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
		defer zl.Sync()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	verifier := client.NewVerificationClient(cfg, client.NewFileStorage(cfg.Dir), zl, nil)
	engine := client.NewEngine(verifier, cfg.DemoMode, zl)

	if err := run(ctx, engine, verifier, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, engine *client.Engine, verifier *client.VerificationClient, name string, args []string) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	email := fs.String("email", "", "subscription email")
	key := fs.String("key", "", "license key")
	plan := fs.String("plan", "", "subscription plan (monthly, quarterly, yearly)")
	returnURL := fs.String("return-url", "", "URL to return to after payment")
	refresh := fs.Bool("refresh", false, "verify the stored credentials")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var cmd client.Command
	switch name {
	case "verify":
		cmd = client.VerifyCommand{Email: *email, LicenseKey: *key}
	case "status":
		cmd = client.StatusCommand{Refresh: *refresh}
	case "reset":
		cmd = client.ResetCommand{}
	case "demo":
		cmd = client.DemoSubscriptionCommand{Email: *email, Plan: *plan}
	case "buy":
		cmd = client.PurchaseCommand{Email: *email, Plan: *plan, ReturnURL: *returnURL}
	case "fingerprint":
		fp := verifier.Identity().GetOrCreate()
		fmt.Println(fp.Value)
		if fp.Degraded {
			fmt.Fprintln(os.Stderr, "warning: fingerprint could not be stored and will change")
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", name, usage)
	}

	reply, err := engine.Handle(ctx, cmd)
	if err != nil {
		return err
	}
	return render(reply)
}

func render(reply client.Reply) error {
	switch r := reply.(type) {
	case client.Result:
		if !r.Valid {
			switch {
			case r.Expired:
				return fmt.Errorf("%s (expired)", r.Error)
			case r.DeviceConflict:
				return fmt.Errorf("%s (device conflict)", r.Error)
			case r.NetworkError:
				return fmt.Errorf("%s (%s)", r.Error, r.Details)
			default:
				return fmt.Errorf("%s", r.Error)
			}
		}
		mode := "online"
		if r.Offline {
			mode = "offline, cached"
		}
		if r.NetworkError {
			mode = "offline, server unreachable"
		}
		fmt.Printf("valid until %s (%d days left, plan %s, %s)\n", r.Expires.Format(time.DateOnly), r.DaysLeft, r.Plan, mode)
	case client.Status:
		if r.Email == "" && !r.Cached {
			fmt.Println("no subscription stored")
			return nil
		}
		fmt.Printf("email:        %s\n", r.Email)
		if r.Expires != nil {
			fmt.Printf("expires:      %s\n", r.Expires.Format(time.RFC3339))
		}
		if r.LastChecked != nil {
			fmt.Printf("last checked: %s\n", r.LastChecked.Format(time.RFC3339))
		}
		fmt.Printf("active:       %t\n", r.Active)
		if r.TestSubscription {
			fmt.Println("test subscription")
		}
	case client.ResetReply:
		fmt.Println("subscription data cleared")
	case client.DemoSubscription:
		fmt.Printf("test subscription created\nemail: %s\nkey:   %s\nuntil: %s\n", r.Email, r.LicenseKey, r.ExpiresAt.Format(time.DateOnly))
	case client.PurchaseReply:
		if !r.Success {
			if len(r.AvailablePlans) > 0 {
				return fmt.Errorf("%s, available plans: %v", r.Error, r.AvailablePlans)
			}
			return fmt.Errorf("%s", r.Error)
		}
		fmt.Printf("payment %s created, complete it at:\n%s\n", r.PaymentID, r.PaymentURL)
	default:
		return fmt.Errorf("unexpected reply %T", reply)
	}
	return nil
}
