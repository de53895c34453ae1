// Command transmitter runs at the wheel. It samples the input device at a
// fixed rate and streams control commands to the bridge, under the control of
// a small HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/rclink/internal/api"
	"github.com/banshee-data/rclink/internal/config"
	"github.com/banshee-data/rclink/internal/input"
	"github.com/banshee-data/rclink/internal/monitoring"
	"github.com/banshee-data/rclink/internal/profile"
	"github.com/banshee-data/rclink/internal/transmitter"
	"github.com/banshee-data/rclink/internal/version"
)

type flags struct {
	configFile *string
	target     *string
	hz         *int
	device     *string
	modeFile   *string
	listen     *string
	autostart  *bool
	dev        *bool
	logFile    *string
	version    *bool
}

func defineFlags(fs *flag.FlagSet) *flags {
	return &flags{
		configFile: fs.String("config", "", "Path to a .json or .yaml config file, e.g. "+config.DefaultConfigPath),
		target:     fs.String("target", "127.0.0.1:5005", "Bridge address host:port"),
		hz:         fs.Int("hz", transmitter.DefaultSendHz, "Command send rate"),
		device:     fs.String("device", "/dev/input/js0", "Joystick device"),
		modeFile:   fs.String("mode-file", "", "Active driving mode file (empty fixes the mode at normal)"),
		listen:     fs.String("listen", "127.0.0.1:8090", "Control API listen address"),
		autostart:  fs.Bool("autostart", false, "Start car control immediately"),
		dev:        fs.Bool("dev", false, "Use a centred static input device instead of a joystick"),
		logFile:    fs.String("log-file", "", "Also write logs to this rotating file"),
		version:    fs.Bool("version", false, "Print version and exit"),
	}
}

type settings struct {
	Target         string
	SendHz         int
	Device         string
	ModeFile       string
	Listen         string
	Autostart      bool
	Dev            bool
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	ReconnectDelay time.Duration
	Axes           input.AxisMap
}

// resolveSettings starts from the config file and applies only the flags that
// were given on the command line.
func resolveSettings(cfg *config.LinkConfig, f *flags, fs *flag.FlagSet) settings {
	s := settings{
		Target:         cfg.GetTargetAddress(),
		SendHz:         cfg.GetSendHz(),
		Device:         cfg.GetJoystickDevice(),
		ModeFile:       cfg.GetModeFile(),
		Listen:         *f.listen,
		Autostart:      *f.autostart,
		Dev:            *f.dev,
		ConnectTimeout: cfg.GetConnectTimeout(),
		WriteTimeout:   cfg.GetWriteTimeout(),
		ReconnectDelay: cfg.GetReconnectDelay(),
		Axes:           cfg.GetAxes(),
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "target":
			s.Target = *f.target
		case "hz":
			s.SendHz = *f.hz
		case "device":
			s.Device = *f.device
		case "mode-file":
			s.ModeFile = *f.modeFile
		}
	})
	return s
}

func (s settings) transmitterConfig() transmitter.Config {
	axes := s.Axes
	return transmitter.Config{
		Address:        s.Target,
		SendHz:         s.SendHz,
		ConnectTimeout: s.ConnectTimeout,
		WriteTimeout:   s.WriteTimeout,
		ReconnectDelay: s.ReconnectDelay,
		Axes:           &axes,
	}
}

func (s settings) opener() input.Opener {
	if s.Dev {
		return func() (input.Device, error) { return input.NewStaticDevice(), nil }
	}
	return input.JoystickOpener(s.Device)
}

// fixedMode serves a mode that cannot be changed at runtime.
type fixedMode struct{ profile.StaticMode }

func (fixedMode) Save(profile.DrivingMode) error {
	return errors.New("no mode file configured")
}

func (s settings) modeStore() api.ModeStore {
	if s.ModeFile == "" {
		return fixedMode{profile.StaticMode(profile.DefaultMode)}
	}
	return config.NewModeFile(s.ModeFile)
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
		fmt.Println("transmitter", version.String())
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
	if s.SendHz < 1 || s.SendHz > 1000 {
		log.Fatalf("send rate must be between 1 and 1000 Hz, got %d", s.SendHz)
	}

	if err := run(s); err != nil {
		log.Fatal(err)
	}
}

func run(s settings) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	modes := s.modeStore()
	ctrl := transmitter.NewController(s.transmitterConfig(), s.opener(), modes)

	mux := api.NewServer(ctrl, modes).ServeMux()
	ctrl.AttachAdminRoutes(mux)

	server := &http.Server{
		Addr:    s.Listen,
		Handler: api.LoggingMiddleware(mux),
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()
	log.Printf("transmitter %s: control API on %s, target %s at %d Hz", version.Version, s.Listen, s.Target, s.SendHz)

	if s.Autostart {
		res := ctrl.Start()
		log.Printf("autostart: %s: %s", res.Status, res.Message)
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if err != nil {
			err = fmt.Errorf("control API failed: %w", err)
		}
	}

	// Stop flushes a failsafe command before the connection closes.
	if res := ctrl.Stop(); res.Status == transmitter.StatusOK {
		log.Printf("car control stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		log.Printf("failed to shut down control API: %v", serr)
	}
	return err
}
