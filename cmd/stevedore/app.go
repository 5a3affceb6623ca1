package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/stevedore/pkg/cluster"
	"github.com/cuemby/stevedore/pkg/config"
	"github.com/cuemby/stevedore/pkg/events"
	"github.com/cuemby/stevedore/pkg/log"
	"github.com/cuemby/stevedore/pkg/metrics"
	"github.com/cuemby/stevedore/pkg/node"
	"github.com/cuemby/stevedore/pkg/orchestrator"
	"github.com/cuemby/stevedore/pkg/remote"
	"github.com/cuemby/stevedore/pkg/storage"
	"github.com/cuemby/stevedore/pkg/types"
)

// app is the execution context of one invocation
type app struct {
	def         *types.Cluster
	rt          *config.Runtime
	proxy       *cluster.Proxy
	store       *storage.BoltStore
	metricsFile string
}

// addClusterFlags registers the flags every cluster command takes
func addClusterFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("file", "f", "cluster.yaml", "Cluster definition file")
}

// loadApp reads the definition and runtime settings and builds the proxy
func loadApp(cmd *cobra.Command) (*app, error) {
	file, _ := cmd.Flags().GetString("file")
	envFile, _ := cmd.Flags().GetString("env-file")
	stateDir, _ := cmd.Flags().GetString("state-dir")
	metricsFile, _ := cmd.Flags().GetString("metrics-file")

	rt, err := config.LoadRuntime(envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}
	if stateDir != "" {
		rt.StateDir = stateDir
	}

	def, err := config.Load(file)
	if err != nil {
		return nil, err
	}

	proxy, err := cluster.New(def, node.NewFactory(remote.SSHFactory), rt)
	if err != nil {
		return nil, err
	}
	return &app{def: def, rt: rt, proxy: proxy, metricsFile: metricsFile}, nil
}

// openStore opens the local state store on first use
func (a *app) openStore() (*storage.BoltStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := storage.NewBoltStore(a.rt.StateDir)
	if err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

// secrets binds the cluster's encrypted secrets
func (a *app) secrets() (*cluster.Secrets, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	return cluster.NewSecrets(store, a.rt.SecretPassphrase, a.def.Name)
}

func (a *app) Close() {
	_ = a.proxy.Close()
	if a.store != nil {
		_ = a.store.Close()
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// run drives one orchestrated command: registers the steps, runs them with
// progress on stdout, prints the report, records the run and writes metrics.
// A failed run returns errRunFailed.
func (a *app) run(command string, nodes []*node.Handle, register func(o *orchestrator.Orchestrator)) error {
	ctx, cancel := signalContext()
	defer cancel()

	broker := events.NewBroker()
	broker.Start()
	sub := broker.Subscribe(
		events.EventStepStarted,
		events.EventStepSkipped,
		events.EventNodeFaulted,
		events.EventRunAborted,
	)
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		printProgress(sub)
	}()

	o := orchestrator.New(nodes, a.rt, orchestrator.WithEvents(broker))
	register(o)

	collector := metrics.NewCollector(o.NodeStates, 5*time.Second)
	collector.Start()

	ok := o.Run(ctx)

	collector.Stop()
	broker.Stop()
	broker.Unsubscribe(sub)
	<-progressDone

	fmt.Println()
	if err := o.Report(os.Stdout); err != nil {
		return err
	}
	a.record(o.Result(), command)
	a.writeMetrics()

	if !ok {
		return errRunFailed
	}
	return nil
}

func (a *app) record(res *orchestrator.Result, command string) {
	store, err := a.openStore()
	if err != nil {
		log.Logger.Warn().Err(err).Msg("Run history not recorded")
		return
	}
	if err := store.SaveRun(res.Record(a.def.Name, command)); err != nil {
		log.Logger.Warn().Err(err).Msg("Run history not recorded")
	}
}

func (a *app) writeMetrics() {
	if a.metricsFile == "" {
		return
	}
	if err := metrics.WriteTextfile(a.metricsFile); err != nil {
		log.Logger.Warn().Err(err).Str("path", a.metricsFile).Msg("Failed to write metrics")
	}
}

// printProgress prints step and fault events until sub is closed
func printProgress(sub events.Subscriber) {
	for ev := range sub {
		switch ev.Type {
		case events.EventStepStarted:
			fmt.Printf("==> %s\n", ev)
		case events.EventNodeFaulted:
			fmt.Printf("    ✗ %s\n", ev)
		case events.EventRunAborted:
			fmt.Printf("!!! %s\n", ev)
		default:
			fmt.Printf("--> %s\n", ev)
		}
	}
}
