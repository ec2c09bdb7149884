package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"capstan/internal/config"
	"capstan/internal/events"
	"capstan/internal/manifest"
	"capstan/internal/orchestrator"
	"capstan/internal/reconciler"
	"capstan/internal/resolve"
	"capstan/internal/router"
	"capstan/internal/server"
	"capstan/pkg/logging"
)

// Options control application bootstrap.
type Options struct {
	// ConfigPath overrides the default config file location.
	ConfigPath string

	// Debug enables debug-level logging.
	Debug bool

	// Silent suppresses all log output.
	Silent bool
}

// Application wires the capability subsystem together: manifest store,
// endpoint resolver, invocation router, and (under the kubernetes
// topology) the orchestrator and reconcile manager.
type Application struct {
	config config.CapstanConfig

	store    *manifest.Store
	resolver resolve.Resolver
	router   *router.Router
	bus      *events.Bus
	server   *server.Server

	// Set only for the kubernetes topology.
	orchestrator *orchestrator.Orchestrator
	manager      *reconciler.Manager
}

// NewApplication loads configuration and the capability manifest and
// wires all components.
func NewApplication(opts Options) (*Application, error) {
	logLevel := logging.LevelInfo
	if opts.Debug {
		logLevel = logging.LevelDebug
	}
	var logOutput io.Writer = os.Stdout
	if opts.Silent {
		logOutput = io.Discard
	}
	logging.Init(logLevel, logOutput)

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.GetDefaultConfigPathOrPanic()
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load configuration")
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	set, err := manifest.LoadFile(cfg.ManifestPath)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to compile capability manifest")
		return nil, fmt.Errorf("compiling manifest: %w", err)
	}
	store := manifest.NewStore(set)

	app := &Application{
		config: cfg,
		store:  store,
		bus:    events.NewBus(),
	}

	if err := app.initResolver(); err != nil {
		return nil, err
	}

	app.router = router.New(store, app.resolver, router.Config{
		DefaultTimeout: cfg.Router.DefaultTimeout,
		MaxRetries:     cfg.Router.MaxRetries,
		InitialBackoff: cfg.Router.InitialBackoff,
		MaxBackoff:     cfg.Router.MaxBackoff,
		JitterEnabled:  true,
	})
	app.router.AddObserver(router.ObserverFunc(app.publishInvocation))

	app.server = server.New(server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, store, app.router)

	return app, nil
}

// initResolver builds the resolver chain for the configured topology.
func (a *Application) initResolver() error {
	var inner resolve.Resolver

	switch a.config.Resolver.Topology {
	case config.TopologyStatic:
		inner = resolve.NewStaticResolver(a.store, a.config.Resolver.ServicePattern)

	case config.TopologyKubernetes:
		client, err := buildKubernetesClient(a.config.Cluster.Kubeconfig)
		if err != nil {
			return fmt.Errorf("building cluster client: %w", err)
		}
		namespace := a.config.Cluster.Namespace
		a.orchestrator = orchestrator.New(client, namespace, a.bus)
		a.manager = reconciler.NewManager(
			reconciler.ManagerConfig{},
			a.config.ManifestPath,
			a.store,
			reconciler.NewCapabilityReconciler(a.store, a.orchestrator),
			a.bus,
		)
		inner = resolve.NewKubernetesResolver(client, namespace, orchestrator.WorkloadName, a.store)

	default:
		return fmt.Errorf("unknown resolver topology %q", a.config.Resolver.Topology)
	}

	a.resolver = resolve.NewCachedResolver(inner, a.config.Resolver.CacheTTL)
	return nil
}

// buildKubernetesClient prefers an explicit kubeconfig, then the
// in-cluster service account, then the default kubeconfig location.
func buildKubernetesClient(kubeconfig string) (kubernetes.Interface, error) {
	var restConfig *rest.Config
	var err error

	if kubeconfig != "" {
		restConfig, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else if restConfig, err = rest.InClusterConfig(); err == rest.ErrNotInCluster {
		rules := clientcmd.NewDefaultClientConfigLoadingRules()
		restConfig, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, nil).ClientConfig()
	}
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(restConfig)
}

// Run serves until the context is cancelled. Under the kubernetes
// topology the reconcile manager runs alongside the HTTP front door
// and converges the cluster on startup.
func (a *Application) Run(ctx context.Context) error {
	stopEventLog := a.subscribeEventLog()
	defer stopEventLog()

	if a.manager != nil {
		if err := a.manager.Start(ctx); err != nil {
			return fmt.Errorf("starting reconcile manager: %w", err)
		}
		defer a.manager.Stop()
		a.manager.TriggerAll(reconciler.SourceManual)
	}

	if err := a.server.Start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	<-ctx.Done()
	return a.server.Stop(context.Background())
}

// Router exposes the invocation router.
func (a *Application) Router() *router.Router {
	return a.router
}

// Store exposes the descriptor store.
func (a *Application) Store() *manifest.Store {
	return a.store
}

// Orchestrator returns the deployment orchestrator, or an error when
// the configured topology has no cluster.
func (a *Application) Orchestrator() (*orchestrator.Orchestrator, error) {
	if a.orchestrator == nil {
		return nil, fmt.Errorf("topology %q has no cluster orchestrator", a.config.Resolver.Topology)
	}
	return a.orchestrator, nil
}

// publishInvocation forwards router completions onto the event bus.
func (a *Application) publishInvocation(ev router.InvocationEvent) {
	data := events.EventData{
		Capability: ev.Capability,
		Arguments:  ev.Arguments,
		Outcome:    ev.Outcome,
		Attempts:   ev.Attempts,
		Duration:   ev.Duration,
	}

	switch {
	case ev.Outcome == "result":
		a.bus.Publish(events.ReasonInvocationSucceeded, data)
	case ev.ErrorKind == router.KindValidation || ev.ErrorKind == router.KindNotFound:
		data.Error = string(ev.ErrorKind)
		a.bus.Publish(events.ReasonInvocationRejected, data)
	default:
		data.Error = string(ev.ErrorKind)
		a.bus.Publish(events.ReasonInvocationFailed, data)
	}
}

// subscribeEventLog logs every bus event and returns its cancel func.
func (a *Application) subscribeEventLog() func() {
	ch, cancel := a.bus.Subscribe(64)
	go func() {
		for ev := range ch {
			if ev.Type == events.EventTypeWarning {
				logging.Warn("Events", "%s: %s", ev.Reason, ev.Message)
			} else {
				logging.Info("Events", "%s: %s", ev.Reason, ev.Message)
			}
		}
	}()
	return cancel
}
