package main

import (
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/tbourn/teamhub/internal/apperr"
	"github.com/tbourn/teamhub/internal/config"
	"github.com/tbourn/teamhub/internal/httpclient"
	"github.com/tbourn/teamhub/internal/sysutil"
	"github.com/tbourn/teamhub/internal/teamapi"
)

// app is the state shared by every command of one invocation.
type app struct {
	flags  globalFlags
	out    io.Writer
	errOut io.Writer
	log    zerolog.Logger
	api    *teamapi.Client
}

func newApp(out, errOut io.Writer) *app {
	return &app{out: out, errOut: errOut, log: zerolog.Nop()}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "teamctl",
		Short:         "Manage TeamHub teams and users",
		Long:          `teamctl talks to the TeamHub API. Settings come from ~/.teamctl.yaml, CLIENT_* and TEAMCTL_* environment variables and flags, in increasing precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.server, "server", "", "API base URL (default from config or CLIENT_BASE_URL)")
	pf.StringVar(&a.flags.token, "token", "", "bearer token (default from config or TEAMCTL_TOKEN)")
	pf.StringVar(&a.flags.configPath, "config", defaultConfigPath(), "config file")
	pf.DurationVar(&a.flags.timeout, "timeout", httpclient.DefaultTimeout, "per-attempt timeout")
	pf.IntVar(&a.flags.retries, "retries", 3, "maximum retries per call")
	pf.Float64Var(&a.flags.rps, "rps", 0, "client-side request rate limit, 0 for none")
	pf.BoolVar(&a.flags.debug, "debug", false, "log retries and failures to stderr")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return a.setup(pf.Changed)
	}

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newHealthCmd(a),
		newTeamsCmd(a),
		newUsersCmd(a),
	)
	return root
}

// setup resolves settings and builds the API client.
func (a *app) setup(changed changedFunc) error {
	env, err := config.LoadClient()
	if err != nil {
		return apperr.Validation(err.Error(), nil).WithCause(err)
	}
	fc, err := readFileConfig(a.flags.configPath)
	if err != nil {
		return err
	}
	s, err := resolve(env, fc, a.flags, changed)
	if err != nil {
		return err
	}

	level := "warn"
	if s.debug {
		level = "debug"
	}
	a.log = sysutil.SetupLogger(level, true, a.errOut)

	opts := append(s.client.Options(a.log),
		httpclient.WithTransport(httpclient.InstrumentedDoer(&http.Client{})),
		httpclient.WithIdempotencyKeys(),
		httpclient.WithDefaultHeaders(map[string]string{"User-Agent": "teamctl"}),
	)
	hc := httpclient.New(s.client.BaseURL, opts...)
	if s.rps > 0 {
		hc.UseRequestInterceptor(httpclient.RateLimit(rate.NewLimiter(rate.Limit(s.rps), 1)))
	}
	a.api = teamapi.New(hc, teamapi.NewSession(s.token))
	hc.UseErrorInterceptor(httpclient.LogErrors(a.log))
	return nil
}

// exactArgs is cobra.ExactArgs with a taxonomy error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return apperr.Validation(fmt.Sprintf("usage: %s", cmd.UseLine()), map[string]any{
				apperr.MetaDetails: map[string]any{"expected": n, "got": len(args)},
			})
		}
		return nil
	}
}

// unwrap converts a call result into the (value, error) form cobra expects,
// keeping a nil *apperr.Error from becoming a non-nil error.
func unwrap[T any](r httpclient.Result[T]) (T, error) {
	v, e := r.Unpack()
	if e != nil {
		return v, e
	}
	return v, nil
}
