// Command bridge runs on the vehicle. It receives control commands over TCP,
// drives the actuator controller over serial, and fails safe when commands
// stop arriving.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/rclink/internal/bridge"
	"github.com/banshee-data/rclink/internal/config"
	"github.com/banshee-data/rclink/internal/journal"
	"github.com/banshee-data/rclink/internal/monitoring"
	"github.com/banshee-data/rclink/internal/serialmux"
	"github.com/banshee-data/rclink/internal/version"
)

type flags struct {
	configFile    *string
	listen        *string
	port          *string
	baud          *int
	watchdogMs    *int
	disableSerial *bool
	journal       *string
	admin         *string
	logFile       *string
	version       *bool
}

func defineFlags(fs *flag.FlagSet) *flags {
	return &flags{
		configFile:    fs.String("config", "", "Path to a .json or .yaml config file, e.g. "+config.DefaultConfigPath),
		listen:        fs.String("listen", "0.0.0.0:5005", "Control command listen address"),
		port:          fs.String("port", "/dev/ttyTHS1", "Actuator serial device"),
		baud:          fs.Int("baud", serialmux.DefaultBaudRate, "Actuator serial baud rate"),
		watchdogMs:    fs.Int("watchdog-ms", 150, "Milliseconds without a valid command before failsafe"),
		disableSerial: fs.Bool("disable-serial", false, "Log actuation frames instead of writing them to serial"),
		journal:       fs.String("journal", "", "Path to the session journal database (empty disables)"),
		admin:         fs.String("admin", "", "Debug HTTP listen address (empty disables)"),
		logFile:       fs.String("log-file", "", "Also write logs to this rotating file"),
		version:       fs.Bool("version", false, "Print version and exit"),
	}
}

// settings is the effective configuration after flags override the file.
type settings struct {
	Listen          string
	SerialPort      string
	Baud            int
	WatchdogTimeout time.Duration
	WatchdogPoll    time.Duration
	DisableSerial   bool
	JournalPath     string
	Admin           string
}

// resolveSettings starts from the config file and applies only the flags that
// were given on the command line.
func resolveSettings(cfg *config.LinkConfig, f *flags, fs *flag.FlagSet) settings {
	s := settings{
		Listen:          cfg.GetBridgeListen(),
		SerialPort:      cfg.GetSerialDevice(),
		Baud:            cfg.GetSerialBaud(),
		WatchdogTimeout: cfg.GetWatchdogTimeout(),
		WatchdogPoll:    cfg.GetWatchdogPoll(),
		DisableSerial:   *f.disableSerial,
		JournalPath:     cfg.GetJournalPath(),
		Admin:           *f.admin,
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "listen":
			s.Listen = *f.listen
		case "port":
			s.SerialPort = *f.port
		case "baud":
			s.Baud = *f.baud
		case "watchdog-ms":
			s.WatchdogTimeout = time.Duration(*f.watchdogMs) * time.Millisecond
		case "journal":
			s.JournalPath = *f.journal
		}
	})
	return s
}

func loadConfig(path string) (*config.LinkConfig, error) {
	if path == "" {
		return config.EmptyLinkConfig(), nil
	}
	return config.LoadLinkConfig(path)
}

func main() {
	f := defineFlags(flag.CommandLine)
	flag.Parse()

	if *f.version {
		fmt.Println("bridge", version.String())
		return
	}
	if *f.logFile != "" {
		defer monitoring.RedirectToFile(*f.logFile).Close()
	}

	cfg, err := loadConfig(*f.configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	s := resolveSettings(cfg, f, flag.CommandLine)
	if s.WatchdogTimeout <= 0 {
		log.Fatal("watchdog timeout must be positive")
	}

	if err := run(s); err != nil {
		log.Fatal(err)
	}
}

func run(s settings) error {
	var actuator serialmux.SerialMuxInterface
	if s.DisableSerial {
		actuator = serialmux.NewDisabledSerialMux()
	} else {
		m, err := serialmux.NewRealSerialMux(s.SerialPort, serialmux.PortOptions{BaudRate: s.Baud})
		if err != nil {
			return err
		}
		actuator = m
	}
	defer actuator.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bcfg := bridge.Config{
		ListenAddr:      s.Listen,
		WatchdogTimeout: s.WatchdogTimeout,
		WatchdogPoll:    s.WatchdogPoll,
	}

	var jdb *journal.DB
	var rec *journal.Recorder
	if s.JournalPath != "" {
		var err error
		jdb, err = journal.Open(s.JournalPath)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer jdb.Close()
		rec = journal.NewRecorder(jdb, time.Minute)
		rec.Start(ctx)
		bcfg.Events = rec
	}

	b := bridge.New(bcfg, actuator)
	if err := b.Listen(); err != nil {
		return err
	}

	var wg sync.WaitGroup

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := actuator.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// log whatever the actuator controller reports back
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := actuator.Subscribe()
		defer actuator.Unsubscribe(id)
		for {
			select {
			case line, ok := <-c:
				if !ok {
					return
				}
				log.Printf("actuator: %s", line)
			case <-ctx.Done():
				return
			}
		}
	}()

	if s.Admin != "" {
		mux := http.NewServeMux()
		b.AttachAdminRoutes(mux)
		actuator.AttachAdminRoutes(mux)
		if jdb != nil {
			jdb.AttachAdminRoutes(mux, rec)
		}
		server := &http.Server{Addr: s.Admin, Handler: mux}

		wg.Add(1)
		go func() {
			defer wg.Done()
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Printf("admin server failed: %v", err)
				}
			}()
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("failed to shut down admin server: %v", err)
			}
		}()
		log.Printf("admin routes on http://%s/debug/", s.Admin)
	}

	log.Printf("bridge %s, serial %s", version.Version, serialLabel(s))
	err := b.Run(ctx)
	stop()
	wg.Wait()
	if rec != nil {
		rec.Wait()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func serialLabel(s settings) string {
	if s.DisableSerial {
		return "disabled"
	}
	return fmt.Sprintf("%s @ %d", s.SerialPort, s.Baud)
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
}
