package cli

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"

	"github.com/jmxgate/jmxgate/internal/access"
	"github.com/jmxgate/jmxgate/internal/acl"
	"github.com/jmxgate/jmxgate/internal/config"
	"github.com/jmxgate/jmxgate/internal/gateway"
	"github.com/jmxgate/jmxgate/internal/kube"
	"github.com/jmxgate/jmxgate/internal/metrics"
	"github.com/jmxgate/jmxgate/internal/server"
	"github.com/jmxgate/jmxgate/internal/upstream"
)

const banner = `
    _ __  ____  __ ___   _ _____ ___
 _ | |  \/  \ \/ // __| /_\_   _| __|
| || | |\/| |>  <| (_ |/ _ \| | | _|
 \__/|_|  |_/_/\_\\___/_/ \_\_| |___|
`

func newServeCmd() *cobra.Command {
	var (
		port    int
		host    string
		aclFile string
		dev     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the jmxgate server",
		Long: `Start the HTTP server that proxies Jolokia requests to pods under
/management/namespaces/{namespace}/pods/{proto}:{pod}:{port}/{path}.

RBAC is enabled when an ACL file is configured (--acl, rbac.acl_file or
JMXGATE_RBAC_ACL). Without it, callers allowed to update the pod are passed
through to the agent unchanged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dev {
				viper.Set("logging.level", "debug")
			}
			return runServe(cmd)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8443, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().StringVar(&aclFile, "acl", "", "ACL file enabling RBAC")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	viper.BindPFlag("rbac.acl_file", cmd.Flags().Lookup("acl"))

	return cmd
}

func runServe(cmd *cobra.Command) error {
	if cfgFile != "" {
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), banner)
	fmt.Fprintln(cmd.OutOrStdout())

	logger := newLogger(os.Stderr, cfg.Logging)
	// client-go logs through klog; route it into the same handler.
	klog.SetLogger(logr.FromSlogHandler(logger.Handler()))

	// 1. ACL
	var policy *acl.Policy
	if cfg.RBAC.ACLFile != "" {
		policy, err = acl.Load(cfg.RBAC.ACLFile)
		if err != nil {
			return fmt.Errorf("load ACL: %w", err)
		}
		logger.Info("ACL loaded", "path", cfg.RBAC.ACLFile, "rules", policy.Rules())
	} else {
		logger.Warn("no ACL configured, RBAC disabled: callers with update access are passed through")
	}

	// 2. Cluster access with the caller's identity
	mode, err := access.ParseMode(cfg.Kubernetes.AuthMode)
	if err != nil {
		return err
	}
	factory, err := kube.NewFactory(kube.Config{
		Kubeconfig: cfg.Kubernetes.Kubeconfig,
		Timeout:    cfg.Kubernetes.Timeout,
	})
	if err != nil {
		return fmt.Errorf("kubernetes client: %w", err)
	}
	logger.Info("kubernetes API configured", "host", factory.Host(), "auth_mode", mode)
	resolver := access.NewResolver(factory, mode, logger)

	// 3. Jolokia agents
	forwarder, err := upstream.New(upstream.Config{
		Timeout:            cfg.Upstream.Timeout,
		CAFile:             cfg.Upstream.TLS.CAFile,
		CertFile:           cfg.Upstream.TLS.CertFile,
		KeyFile:            cfg.Upstream.TLS.KeyFile,
		InsecureSkipVerify: cfg.Upstream.TLS.InsecureSkipVerify,
	}, logger)
	if err != nil {
		return fmt.Errorf("upstream client: %w", err)
	}

	// 4. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// 5. Gateway and HTTP server
	gw, err := gateway.New(resolver, forwarder, gateway.PolicyConfig{RBAC: policy != nil, Policy: policy}, m, logger)
	if err != nil {
		return err
	}

	srvCfg := server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORS.Origins,
		MaxBodySize:     cfg.Server.MaxBodySize,
		RateLimit:       cfg.Server.RateLimit,
		TLSCertFile:     cfg.Server.TLS.CertFile,
		TLSKeyFile:      cfg.Server.TLS.KeyFile,
	}
	info := server.Info{Version: appVersion, RBAC: policy != nil}
	if policy != nil {
		info.ACLRules = policy.Rules()
	}
	srv := server.New(srvCfg, gw, m, reg, info, logger)

	scheme := "http"
	if cfg.Server.TLS.Enabled() {
		scheme = "https"
	}
	base := fmt.Sprintf("%s://%s:%d", scheme, cfg.Server.Host, cfg.Server.Port)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "→ jmxgate %s\n", appVersion)
	fmt.Fprintf(out, "→ Listening on %s\n", base)
	fmt.Fprintf(out, "→ Gateway:    %s/management/namespaces/{namespace}/pods/{proto}:{pod}:{port}/jolokia\n", base)
	fmt.Fprintf(out, "→ OpenAPI:    %s/openapi.json\n", base)
	fmt.Fprintf(out, "→ Metrics:    %s/metrics\n", base)
	if policy != nil {
		fmt.Fprintf(out, "→ RBAC:       enabled (%d rules)\n", policy.Rules())
	} else {
		fmt.Fprintf(out, "→ RBAC:       disabled\n")
	}
	fmt.Fprintln(out)

	return srv.ListenAndServe()
}
