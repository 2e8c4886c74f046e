package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	// Packages
	kong "github.com/alecthomas/kong"
	goclient "github.com/mutablelogic/go-client"
	otel "go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oauth2 "golang.org/x/oauth2"

	client "github.com/mutablelogic/go-mcp/pkg/mcp/transport/httpclient"
	schema "github.com/mutablelogic/go-mcp/pkg/mcp/schema"
	oauth "github.com/mutablelogic/go-mcp/pkg/oauth"

	credential "github.com/mutablelogic/go-mcp/pkg/credential"
	credschema "github.com/mutablelogic/go-mcp/pkg/schema"
	version "github.com/mutablelogic/go-mcp/pkg/version"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type CLI struct {
	Globals

	// Commands
	Ping    PingCommand    `cmd:"" help:"Ping the MCP server"`
	Login   LoginCommand   `cmd:"" help:"Login to an MCP server using OAuth"`
	Tools   ToolsCommand   `cmd:"" help:"List available tools"`
	Do      DoCommand      `cmd:"" help:"Call a tool by name"`
	Prompts PromptsCommand `cmd:"" help:"List available prompts"`
	Prompt  PromptCommand  `cmd:"" help:"Get a prompt by name"`
}

type Globals struct {
	Auth          string           `name:"auth" help:"Authentication in the form scheme=token (e.g. bearer=TOKEN)" optional:""`
	Debug         bool             `name:"debug" help:"Enable debug output" default:"false"`
	CredentialDir string           `name:"credential-dir" env:"MCP_CLIENT_CREDENTIAL_DIR" help:"Directory holding encrypted per-server tokens saved by 'login --save'" default:".mcp-client/credentials"`
	Passphrase    string           `name:"passphrase" env:"MCP_CLIENT_PASSPHRASE" help:"Passphrase protecting the credential store" optional:""`
	Version       kong.VersionFlag `name:"version" help:"Print version and exit"`

	// Private
	ctx    context.Context
	cancel context.CancelFunc
	client *client.Client
}

type PingCommand struct {
	URL string `arg:"" help:"MCP server URL"`
}

type LoginCommand struct {
	URL      string `arg:"" help:"MCP server URL"`
	Port     int    `name:"port" help:"Local port for OAuth callback" default:"0"`
	ClientID string `name:"client-id" help:"Pre-registered OAuth client id (dynamic registration is used when omitted)" optional:""`
	Device   bool   `name:"device" help:"Use the device authorization flow instead of a local callback" default:"false"`
	Save     bool   `name:"save" help:"Persist the resulting credentials, encrypted at rest, in --credential-dir"`
}

type ToolsCommand struct {
	URL string `arg:"" help:"MCP server URL"`
}

type DoCommand struct {
	URL  string   `arg:"" help:"MCP server URL"`
	Name string   `arg:"" help:"Tool name"`
	Args []string `arg:"" help:"Tool arguments as key=value pairs" optional:""`
}

type PromptsCommand struct {
	URL string `arg:"" help:"MCP server URL"`
}

type PromptCommand struct {
	URL  string   `arg:"" help:"MCP server URL"`
	Name string   `arg:"" help:"Prompt name"`
	Args []string `arg:"" help:"Prompt arguments as key=value pairs" optional:""`
}

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func main() {
	cli := CLI{}
	cmd := kong.Parse(&cli,
		kong.Name("mcp-client"),
		kong.Description("MCP (Model Context Protocol) client"),
		kong.Vars{"version": string(version.JSON("mcp-client"))},
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	// Create context
	cli.ctx, cli.cancel = signal.NotifyContext(context.Background(), os.Interrupt)
	defer cli.cancel()

	// Register an SDK tracer provider so pkg/credential's span-per-operation
	// calls (otelspan.Start) produce real spans for this invocation instead
	// of otel's default no-op tracer.
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	// Run the selected command
	cmd.FatalIfErrorf(cmd.Run(&cli.Globals))
}

///////////////////////////////////////////////////////////////////////////////
// COMMANDS

func (cmd *LoginCommand) Run(g *Globals) error {
	oauthClient, err := oauth.New()
	if err != nil {
		return err
	}

	cfg := &oauth2.Config{
		ClientID: cmd.ClientID,
		Endpoint: oauth2.Endpoint{AuthURL: cmd.URL},
	}

	sess := oauth.NewSession()

	var creds *schema.OAuthCredentials
	if cmd.Device {
		creds, err = oauthClient.Login(g.ctx, sess, cfg,
			oauth.OptClientName("mcp-client"),
			oauth.OptDevice(func(verificationURI, userCode string) {
				fmt.Fprintf(os.Stderr, "Visit %s and enter code: %s\n", verificationURI, userCode)
			}),
		)
	} else {
		addr := ""
		if cmd.Port != 0 {
			addr = fmt.Sprintf("127.0.0.1:%d", cmd.Port)
		}
		listener, _, lerr := oauth.NewCallbackListener(addr)
		if lerr != nil {
			return lerr
		}
		defer listener.Close()

		creds, err = oauthClient.Login(g.ctx, sess, cfg,
			oauth.OptClientName("mcp-client"),
			oauth.OptInteractive(listener, func(authURL string) {
				fmt.Fprintf(os.Stderr, "Open this URL to authorize mcp-client:\n%s\n", authURL)
			}),
		)
	}
	if g.Debug {
		fmt.Fprintf(os.Stderr, "oauth state: %s\n", sess.State())
	}
	if err != nil {
		return err
	}

	if cmd.Save {
		if g.Passphrase == "" {
			return fmt.Errorf("--save requires --passphrase (or MCP_CLIENT_PASSPHRASE) to encrypt the credential store")
		}
		store, err := credential.NewFileCredentialStore(g.Passphrase, g.CredentialDir)
		if err != nil {
			return fmt.Errorf("opening credential store: %w", err)
		}
		if err := store.SetCredential(g.ctx, cmd.URL, *creds); err != nil {
			return fmt.Errorf("saving credential for %q: %w", cmd.URL, err)
		}
		fmt.Fprintf(os.Stderr, "Saved credentials for %s to %s\n", cmd.URL, g.CredentialDir)
	}

	// Print the resulting credentials (including refresh token, if any) so
	// the caller can inspect them or pass --auth=bearer=<token> directly.
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(creds)
}

func (cmd *PingCommand) Run(g *Globals) error {
	if err := g.connect(cmd.URL); err != nil {
		return err
	}
	defer g.client.Close()

	if _, err := g.client.Initialize(g.ctx); err != nil {
		return err
	}
	if err := g.client.Ping(g.ctx); err != nil {
		return err
	}
	fmt.Println("OK")

	info := g.client.ServerInfo()
	if info == nil {
		return nil
	}
	fmt.Printf("Server:  %s %s\n", info.ServerInfo.Name, info.ServerInfo.Version)
	fmt.Printf("Protocol: %s\n", info.ProtocolVersion)
	fmt.Printf("Capabilities: tools=%v prompts=%v resources=%v logging=%v\n",
		info.Capabilities.Tools != nil,
		info.Capabilities.Prompts != nil,
		info.Capabilities.Resources != nil,
		info.Capabilities.Logging != nil,
	)
	return nil
}

func (cmd *ToolsCommand) Run(g *Globals) error {
	if err := g.connect(cmd.URL); err != nil {
		return err
	}
	defer g.client.Close()

	if _, err := g.client.Initialize(g.ctx); err != nil {
		return err
	}

	result, err := g.client.ListTools(g.ctx)
	if err != nil {
		return err
	}
	for _, t := range result.Tools {
		fmt.Printf("%-30s %s\n", t.Name, t.Description)
		if len(t.InputSchema) > 0 {
			var pretty bytes.Buffer
			if json.Indent(&pretty, t.InputSchema, "  ", "  ") == nil {
				fmt.Printf("  %s\n", pretty.String())
			}
		}
	}
	fmt.Printf("\n%d tools\n", len(result.Tools))
	return nil
}

func (cmd *DoCommand) Run(g *Globals) error {
	if err := g.connect(cmd.URL); err != nil {
		return err
	}
	defer g.client.Close()

	if _, err := g.client.Initialize(g.ctx); err != nil {
		return err
	}

	// Parse key=value args into JSON object
	args, err := parseArgsJSON(cmd.Args)
	if err != nil {
		return err
	}

	result, err := g.client.CallTool(g.ctx, cmd.Name, args)
	if err != nil {
		return err
	}

	if result.IsError {
		fmt.Fprintln(os.Stderr, "Tool returned an error")
	}
	for _, c := range result.Content {
		switch c.Type {
		case "text":
			fmt.Println(c.Text)
		default:
			fmt.Printf("[%s] %s\n", c.Type, c.MimeType)
		}
	}
	return nil
}

func (cmd *PromptsCommand) Run(g *Globals) error {
	if err := g.connect(cmd.URL); err != nil {
		return err
	}
	defer g.client.Close()

	if _, err := g.client.Initialize(g.ctx); err != nil {
		return err
	}

	result, err := g.client.ListPrompts(g.ctx, "")
	if err != nil {
		return err
	}
	for _, p := range result.Prompts {
		fmt.Printf("%-30s %s\n", p.Name, p.Description)
		for _, arg := range p.Arguments {
			req := ""
			if arg.Required {
				req = " (required)"
			}
			fmt.Printf("  %-28s %s%s\n", arg.Name, arg.Description, req)
		}
	}
	fmt.Printf("\n%d prompts\n", len(result.Prompts))
	return nil
}

func (cmd *PromptCommand) Run(g *Globals) error {
	if err := g.connect(cmd.URL); err != nil {
		return err
	}
	defer g.client.Close()

	if _, err := g.client.Initialize(g.ctx); err != nil {
		return err
	}

	// Parse key=value args into string map
	args := make(map[string]string)
	for _, kv := range cmd.Args {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("argument must be key=value, got %q", kv)
		}
		args[parts[0]] = parts[1]
	}

	result, err := g.client.GetPrompt(g.ctx, cmd.Name, args)
	if err != nil {
		return err
	}
	if result.Description != "" {
		fmt.Println(result.Description)
		fmt.Println()
	}
	for i, msg := range result.Messages {
		fmt.Printf("[%d] %s (%s):\n", i, msg.Role, msg.Content.Type)
		if msg.Content.Text != "" {
			fmt.Println(msg.Content.Text)
		}
		fmt.Println()
	}
	return nil
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// connect creates and stores the MCP client on Globals.
func (g *Globals) connect(url string) error {
	var opts []goclient.ClientOpt
	var token goclient.Token
	var storedCred *credschema.OAuthCredentials
	if g.Auth != "" {
		parts := strings.SplitN(g.Auth, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("--auth must be in the form scheme=token (e.g. bearer=TOKEN)")
		}
		scheme := parts[0]
		if strings.EqualFold(scheme, "bearer") {
			scheme = goclient.Bearer
		}
		token = goclient.Token{Scheme: scheme, Value: parts[1]}
		opts = append(opts, goclient.OptReqToken(token))
	} else if g.Passphrase != "" {
		// No --auth given but a credential store is configured: look up a
		// previously 'login --save'd token for this server (spec.md §6:
		// "implementers MAY persist tokens at their discretion").
		store, err := credential.NewFileCredentialStore(g.Passphrase, g.CredentialDir)
		if err != nil {
			return fmt.Errorf("opening credential store: %w", err)
		}
		if cred, err := store.GetCredential(g.ctx, url); err == nil {
			token = goclient.Token{Scheme: goclient.Bearer, Value: cred.AccessToken}
			opts = append(opts, goclient.OptReqToken(token))
			storedCred = cred
		}
	}
	if g.Debug {
		opts = append(opts, goclient.OptTrace(os.Stderr, true))
	}

	c, err := client.New(url, schema.ClientInfo{
		Name:    "mcp-client",
		Version: "0.0.1",
	}, opts...)
	if err != nil {
		return err
	}

	// Store token for the long-lived GET listener, which issues raw HTTP
	// requests outside the wrapped goclient.Client.
	if token.Value != "" {
		c.SetToken(token)
	}

	// Credentials recovered from the store carry enough to refresh and
	// re-authorize (client id, token URL, refresh token), so wire the
	// 401/403 recovery path spec.md §4.7 describes (§8 scenario 6).
	if storedCred != nil {
		oauthClient, oerr := oauth.New()
		if oerr == nil {
			sess := oauth.NewSessionFromCredentials(storedCred)
			cfg := &oauth2.Config{
				ClientID: storedCred.ClientID,
				Endpoint: oauth2.Endpoint{AuthURL: storedCred.Endpoint, TokenURL: storedCred.TokenURL},
			}
			c.SetOAuth(oauthClient, sess, cfg)
		}
	}

	// Set notification callback
	c.OnNotification(func(method string, params json.RawMessage) {
		fmt.Printf("notification: %s %s\n", method, string(params))
	})

	g.client = c
	return nil
}

///////////////////////////////////////////////////////////////////////////////
// HELPERS

// parseArgsJSON converts key=value pairs to a JSON object (json.RawMessage).
// Returns nil if no args are provided.
func parseArgsJSON(args []string) (json.RawMessage, error) {
	if len(args) == 0 {
		return nil, nil
	}
	m := make(map[string]any, len(args))
	for _, kv := range args {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("argument must be key=value, got %q", kv)
		}
		// Try to parse value as JSON (for numbers, booleans, objects)
		var v any
		if err := json.Unmarshal([]byte(parts[1]), &v); err != nil {
			// Fall back to string
			v = parts[1]
		}
		m[parts[0]] = v
	}
	return json.Marshal(m)
}
