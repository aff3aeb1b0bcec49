package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"steamcommunity/cmd/steamcommunity-cli/globals"
	"steamcommunity/internal/community"
	"steamcommunity/internal/components/telemetry"
	"steamcommunity/internal/confirmation"
	"steamcommunity/internal/sessiondb"
	"steamcommunity/internal/totp"
	"steamcommunity/lib/httpdump"
	"time"

	"github.com/davecgh/go-spew/spew"
)

func newClient(value *globals.Value) (*community.Client, error) {
	client, err := community.NewClient(community.Options{
		CommunityURL:      value.Config.CommunityURL,
		APIURL:            value.Config.APIURL,
		RequestsPerSecond: value.Config.RequestsPerSecond,
		Timeout:           value.Config.RequestTimeout(),
		CloudflareBypass:  value.Config.CloudflareBypass,
	}, telemetry.SlogAPI{})
	if err != nil {
		return nil, err
	}

	if value.Verbose {
		client.Events.PostRequest.Subscribe(func(ev community.PostRequestEvent) {
			slog.Debug(
				"request",
				"id", ev.ID,
				"source", ev.Source,
				"method", ev.Descriptor.Method,
				"url", ev.Descriptor.URL,
				"err", ev.Err,
			)
		})
	}
	if value.DumpDir != "" {
		output, err := httpdump.NewFilesystemOutput(value.DumpDir)
		if err != nil {
			return nil, err
		}
		client.Events.PostRequest.Subscribe(func(ev community.PostRequestEvent) {
			requestURL := ev.Descriptor.URL
			if len(ev.Descriptor.Query) > 0 {
				requestURL += "?" + ev.Descriptor.Query.Encode()
			}
			exchange := httpdump.Exchange{
				Method: ev.Descriptor.Method,
				URL:    requestURL,
				Form:   ev.Descriptor.Form,
			}
			if ev.Response != nil {
				exchange.Status = ev.Response.StatusCode
				exchange.ResponseURL = ev.Response.URL
				exchange.Header = ev.Response.Header
				exchange.Body = ev.Body
			}
			output.Write(fmt.Sprintf("%04d-%s", ev.ID, ev.Source), exchange.String())
		})
	}
	client.Events.SessionExpired.Subscribe(func(ev community.SessionExpiredEvent) {
		slog.Warn("session expired", "source", ev.Source, "url", ev.URL)
	})
	return client, nil
}

// login performs a credential login, answering two factor challenges with a
// code from the shared secret, and stores the resulting session.
func login(ctx context.Context, value *globals.Value, client *community.Client) error {
	cfg := value.Config
	details := community.LoginDetails{
		AccountName: cfg.AccountName,
		Password:    cfg.Password,
		AuthCode:    cfg.AuthCode,
	}
	if cfg.SharedSecret != "" {
		code, err := totp.GenerateTotpCode(cfg.SharedSecret, time.Now())
		if err != nil {
			return err
		}
		details.TwoFactorCode = code
	}
	if stored, err := value.Store.Load(ctx, cfg.AccountName); err == nil {
		details.SteamGuard = stored.Session.SteamGuard
	}

	result, err := client.Login(ctx, details)
	var classified *community.Error
	if errors.As(err, &classified) && classified.Kind == community.KindNeedsEmailGuard {
		return fmt.Errorf("a steam guard code was mailed to an address at %s, set auth_code in the config: %w", classified.Detail, err)
	}
	if err != nil {
		return err
	}
	if value.Verbose {
		spew.Dump(result)
	}

	err = value.Store.Save(ctx, cfg.AccountName, client.Session())
	if err != nil {
		return err
	}
	slog.Info("logged in", "steamid", result.SteamID.String())
	return nil
}

// connect returns a client for the configured account, reusing the stored
// session while it is still valid.
func connect(ctx context.Context, value *globals.Value) (*community.Client, error) {
	client, err := newClient(value)
	if err != nil {
		return nil, err
	}

	record, err := value.Store.Load(ctx, value.Config.AccountName)
	if errors.Is(err, sessiondb.ErrSessionNotFound) {
		return client, login(ctx, value, client)
	}
	if err != nil {
		return nil, err
	}

	err = client.SetCookies(record.Session.CookieStrings())
	if err != nil {
		return nil, err
	}
	client.SetSteamID(record.Session.SteamID)

	loggedIn, familyView, err := client.LoggedIn(ctx)
	if err != nil {
		return nil, err
	}
	if familyView {
		slog.Warn("account is in family view, some pages will be restricted")
	}
	if loggedIn {
		slog.Debug("reusing stored session", "updated_at", record.UpdatedAt)
		return client, nil
	}

	slog.Info("stored session expired, logging in again")
	return client, login(ctx, value, client)
}

// newManager builds a confirmation manager whose keys come from the
// configured identity secret. Allow and cancel timestamps continue after the
// last one an earlier run used for this account.
func newManager(ctx context.Context, value *globals.Value, client *community.Client) (*confirmation.Manager, error) {
	secret := value.Config.IdentitySecret
	if secret == "" {
		return nil, fmt.Errorf("identity_secret must be set in %s to use confirmations", *configPath)
	}
	lastKeyTime, err := value.Store.LastKeyTime(ctx, value.Config.AccountName)
	if err != nil {
		return nil, err
	}

	manager := confirmation.NewManager(client, confirmation.Options{
		IdentitySecret: secret,
		LastKeyTime:    lastKeyTime,
	}, telemetry.SlogAPI{})

	manager.Events.Debug.Subscribe(func(ev confirmation.DebugEvent) {
		slog.Debug(ev.Message)
	})
	return manager, nil
}

// saveKeyTime records the last allow or cancel timestamp of manager for the
// next run.
func saveKeyTime(ctx context.Context, value *globals.Value, manager *confirmation.Manager) error {
	return value.Store.SaveLastKeyTime(ctx, value.Config.AccountName, manager.LastKeyTime())
}
