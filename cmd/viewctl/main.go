package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"viewledger/cmd/internal/secret"
	"viewledger/config"
	"viewledger/crypto"
	"viewledger/rpc"
)

const (
	defaultConfig   = "./config.toml"
	defaultEndpoint = "http://127.0.0.1:8080"
	tokenEnv        = "VIEWLEDGER_TOKEN"
	endpointEnv     = "VIEWLEDGER_RPC"
)

type command struct {
	name    string
	summary string
	run     func(args []string) error
}

func commands() []command {
	return []command{
		{"token", "Mint a caller token signed with the daemon's JWT secret", runToken},
		{"upload", "Register a video with a content reference and price", runUpload},
		{"unlock", "Pay to unlock a video for the token's caller", runUnlock},
		{"deactivate", "Deactivate one of the caller's videos", runDeactivate},
		{"withdraw", "Withdraw accrued platform fees (owner only)", runWithdraw},
		{"video", "Show a video, including caller access when a token is set", runVideo},
		{"list", "List registered videos", runList},
		{"by-creator", "List video ids uploaded by a creator", runByCreator},
		{"access", "Report whether a viewer has unlocked a video", runAccess},
		{"balance", "Show an account balance", runBalance},
		{"fees", "Show the accrued platform fee balance", runFees},
		{"events", "Page through committed ledger events", runEvents},
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	for _, cmd := range commands() {
		if cmd.name != os.Args[1] {
			continue
		}
		if err := cmd.run(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	usage()
	os.Exit(1)
}

func usage() {
	fmt.Println("viewctl <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	for _, cmd := range commands() {
		fmt.Printf("  %-11s %s\n", cmd.name, cmd.summary)
	}
}

// rpcFlags registers the connection flags shared by every RPC command.
func rpcFlags(fs *flag.FlagSet) (endpoint, token *string) {
	endpoint = fs.String("rpc", envOr(endpointEnv, defaultEndpoint), "Ledger RPC endpoint")
	token = fs.String("token", os.Getenv(tokenEnv), "Bearer token identifying the caller")
	return endpoint, token
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", defaultConfig, "Path to the daemon config file")
	subject := fs.String("subject", "", "Bech32 identity the token speaks for")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := crypto.ParseIdentity(strings.TrimSpace(*subject))
	if err != nil {
		return fmt.Errorf("subject: %w", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	key, err := cfg.Auth.Secret()
	if errors.Is(err, config.ErrMissingSecret) {
		var prompted string
		prompted, err = secret.NewSource("", "", "JWT secret").Get()
		key = []byte(prompted)
	}
	if err != nil {
		return err
	}
	token, err := rpc.SignToken(key, cfg.Auth.Issuer, cfg.Auth.Audience, addr, *ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func runUpload(args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	endpoint, token := rpcFlags(fs)
	ref := fs.String("ref", "", "Content reference, e.g. an IPFS CID")
	price := fs.String("price", "", "Unlock price in base units")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return invoke(*endpoint, *token, "paywall_upload", map[string]string{
		"contentRef": *ref,
		"price":      *price,
	}, true)
}

func runUnlock(args []string) error {
	fs := flag.NewFlagSet("unlock", flag.ExitOnError)
	endpoint, token := rpcFlags(fs)
	id := fs.Uint64("id", 0, "Video id")
	payment := fs.String("payment", "", "Attached payment in base units")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return invoke(*endpoint, *token, "paywall_unlock", map[string]interface{}{
		"id":      *id,
		"payment": *payment,
	}, true)
}

func runDeactivate(args []string) error {
	fs := flag.NewFlagSet("deactivate", flag.ExitOnError)
	endpoint, token := rpcFlags(fs)
	id := fs.Uint64("id", 0, "Video id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return invoke(*endpoint, *token, "paywall_deactivate", map[string]uint64{"id": *id}, true)
}

func runWithdraw(args []string) error {
	fs := flag.NewFlagSet("withdraw", flag.ExitOnError)
	endpoint, token := rpcFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return invoke(*endpoint, *token, "paywall_withdrawFees", nil, true)
}

func runVideo(args []string) error {
	fs := flag.NewFlagSet("video", flag.ExitOnError)
	endpoint, token := rpcFlags(fs)
	id := fs.Uint64("id", 0, "Video id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return invoke(*endpoint, *token, "paywall_getVideo", map[string]uint64{"id": *id}, false)
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	endpoint, token := rpcFlags(fs)
	offset := fs.Uint64("offset", 0, "Number of videos to skip")
	limit := fs.Uint64("limit", 50, "Maximum number of videos")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return invoke(*endpoint, *token, "paywall_listVideos", map[string]uint64{
		"offset": *offset,
		"limit":  *limit,
	}, false)
}

func runByCreator(args []string) error {
	fs := flag.NewFlagSet("by-creator", flag.ExitOnError)
	endpoint, token := rpcFlags(fs)
	creator := fs.String("creator", "", "Creator bech32 address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return invoke(*endpoint, *token, "paywall_listByCreator", map[string]string{"creator": *creator}, false)
}

func runAccess(args []string) error {
	fs := flag.NewFlagSet("access", flag.ExitOnError)
	endpoint, token := rpcFlags(fs)
	id := fs.Uint64("id", 0, "Video id")
	viewer := fs.String("viewer", "", "Viewer bech32 address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return invoke(*endpoint, *token, "paywall_hasAccess", map[string]interface{}{
		"id":     *id,
		"viewer": *viewer,
	}, false)
}

func runBalance(args []string) error {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	endpoint, token := rpcFlags(fs)
	address := fs.String("address", "", "Account bech32 address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return invoke(*endpoint, *token, "bank_getBalance", map[string]string{"address": *address}, false)
}

func runFees(args []string) error {
	fs := flag.NewFlagSet("fees", flag.ExitOnError)
	endpoint, token := rpcFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return invoke(*endpoint, *token, "paywall_getPlatformBalance", nil, false)
}

func runEvents(args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	endpoint, token := rpcFlags(fs)
	after := fs.Uint64("after", 0, "Only return events after this sequence number")
	limit := fs.Int("limit", 100, "Maximum number of events")
	eventType := fs.String("type", "", "Filter by event type")
	videoID := fs.Uint64("video", 0, "Filter by video id")
	address := fs.String("address", "", "Filter by participant address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	params := map[string]interface{}{"afterSeq": *after, "limit": *limit}
	if *eventType != "" {
		params["type"] = *eventType
	}
	if *videoID != 0 {
		params["videoId"] = *videoID
	}
	if *address != "" {
		params["address"] = *address
	}
	return invoke(*endpoint, *token, "paywall_getEvents", params, false)
}

func invoke(endpoint, token, method string, params interface{}, mutating bool) error {
	if mutating && strings.TrimSpace(token) == "" {
		return fmt.Errorf("%s requires a caller token (use -token or %s)", method, tokenEnv)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result, err := newClient(endpoint, token).call(ctx, method, params, mutating)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func printJSON(raw json.RawMessage) error {
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err := os.Stdout.Write(out.Bytes())
	return err
}
