package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tacusci/logging/v2"
	"github.com/tauraamui/framecache/pkg/config"
	"github.com/tauraamui/framecache/pkg/configdef"
	db "github.com/tauraamui/framecache/pkg/database"
	"github.com/tauraamui/framecache/pkg/log"
	"github.com/tauraamui/framecache/pkg/metrics"
	"github.com/tauraamui/framecache/pkg/service"
)

const usage = "Usage: framecache setup | remove-setup | warm [composition...] | export <composition> <frame> <out.png> | watch [composition...] | list"

// Setup writes the default config and creates the sequence catalog.
func Setup() (string, error) {
	log.Info("Setting up framecache...")

	cfg := config.DefaultCreateResolver()
	err := cfg.Create()
	if err != nil {
		if !errors.Is(err, configdef.ErrConfigAlreadyExists) {
			return "", err
		}
		log.Error(err.Error())
	}

	err = db.Setup()
	if err != nil {
		if !errors.Is(err, db.ErrDBAlreadyExists) {
			return "", err
		}
		log.Error(err.Error())
	}

	values, err := cfg.Resolve()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Setup successful... sequences are stored at: %s", values.StoreLocation), nil
}

func RemoveSetup() (string, error) {
	log.Info("Removing setup for framecache...")
	if err := db.Destroy(); err != nil {
		log.Error("unable to delete database file: %s", err.Error())
	}
	if err := config.DefaultDestroyer().Destroy(); err != nil {
		log.Error("unable to delete config file: %s", err.Error())
	}
	return "Removing setup successful...", nil
}

func Manage(args []string) (string, error) {
	if len(args) == 0 {
		return usage, nil
	}

	switch args[0] {
	case "setup":
		return Setup()
	case "remove-setup":
		return RemoveSetup()
	case "warm":
		return withServer(func(s service.Server) (string, error) { return warm(s, args[1:]) })
	case "export":
		return withServer(func(s service.Server) (string, error) { return export(s, args[1:]) })
	case "watch":
		return withServer(func(s service.Server) (string, error) { return watch(s, args[1:]) })
	case "list":
		return withServer(list)
	default:
		return usage, nil
	}
}

func withServer(run func(service.Server) (string, error)) (string, error) {
	values, err := config.DefaultResolver().Resolve()
	if err != nil {
		return "", err
	}
	if values.Debug {
		log.SetLevel("debug")
	}

	server, err := service.NewServer(values, service.Options{})
	if err != nil {
		return "", err
	}
	defer func() { <-server.Shutdown() }()
	return run(server)
}

func loadCompositions(ctx context.Context, server service.Server, paths []string) error {
	errs := server.LoadWithCancel(ctx, paths...)
	for _, err := range errs {
		log.Error(err.Error())
	}
	if len(server.Compositions()) == 0 {
		return errors.New("no compositions to decode")
	}
	return nil
}

func warm(server service.Server, paths []string) (string, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := loadCompositions(ctx, server, paths); err != nil {
		return "", err
	}
	if err := server.Warm(ctx, runtime.NumCPU()); err != nil {
		return "", err
	}
	logTotals()
	return fmt.Sprintf("Warmed %d compositions...", len(server.Compositions())), nil
}

func export(server service.Server, args []string) (string, error) {
	if len(args) != 3 {
		return usage, nil
	}
	index, err := strconv.Atoi(args[1])
	if err != nil {
		return "", fmt.Errorf("invalid frame index %q: %w", args[1], err)
	}
	if err := server.Export(args[0], index, args[2]); err != nil {
		return "", err
	}
	return fmt.Sprintf("Exported frame %d to: %s", index, args[2]), nil
}

func watch(server service.Server, paths []string) (string, error) {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancelStartup := context.WithCancel(context.Background())
	defer cancelStartup()
	if err := loadCompositions(ctx, server, paths); err != nil {
		return "", err
	}
	server.SetupProcesses()
	server.RunProcesses()

	go func() {
		if err := server.Warm(ctx, runtime.NumCPU()); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Unable to warm compositions: %v", err)
		}
	}()

	killSignal := <-interrupt
	fmt.Print("\r")
	log.Error("Received signal: %s", killSignal)

	cancelStartup()
	log.Info("Shutting down server...")
	<-server.Shutdown()
	logTotals()

	return "Shutdown successful... BYE! 👋", nil
}

func list(server service.Server) (string, error) {
	seqs, err := server.Catalog()
	if err != nil {
		return "", err
	}
	for _, seq := range seqs {
		state := "partial"
		if seq.Complete {
			state = "complete"
		}
		fmt.Printf("%s\t%s\t%dx%d\t%d frames @ %.2f fps\t%s\n",
			seq.UUID, seq.CacheKey, seq.Width, seq.Height, seq.NumFrames, seq.FrameRate, state)
	}
	return fmt.Sprintf("%d sequences cataloged...", len(seqs)), nil
}

func logTotals() {
	totals, err := metrics.Totals(prometheus.DefaultGatherer)
	if err != nil {
		log.Warn("Unable to gather metrics: %v", err)
		return
	}
	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		log.Info("%s: %v", name, totals[name])
	}
}

func init() {
	log.SetLevel(os.Getenv("FRAMECACHE_LOGGING_LEVEL"))
}

func main() {
	status, err := Manage(os.Args[1:])
	if err != nil {
		logging.Error(err.Error()) //nolint
		os.Exit(1)
	}

	logging.Info(status) //nolint
}
