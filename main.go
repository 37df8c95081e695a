package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/42wim/matterfed/bridge"
	"github.com/42wim/matterfed/bridge/matrix"
	"github.com/42wim/matterfed/config"
	"github.com/42wim/matterfed/federation"
	"github.com/42wim/matterfed/intake"
	"github.com/42wim/matterfed/store"
	"github.com/google/gops/agent"
	prefixed "github.com/matterbridge/logrus-prefixed-formatter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var (
	version = "0.1.0"
	githash string
	logger  *logrus.Entry
)

func main() {
	ourlog := logrus.New()
	ourlog.SetFormatter(&prefixed.TextFormatter{
		PrefixPadding: 13,
		FullTimestamp: true,
	})
	logger = ourlog.WithFields(logrus.Fields{"prefix": "main"})

	flagConfig := flag.String("conf", "matterfed.toml", "config file")
	flagDebug := flag.Bool("debug", false, "enable debug logging")
	flagTrace := flag.Bool("trace", false, "enable trace logging")
	flagGops := flag.Bool("gops", false, "enable gops agent")
	flagVersion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *flagVersion {
		fmt.Printf("version: %s %s\n", version, githash)
		return
	}

	v, err := config.LoadConfig(*flagConfig)
	if err != nil {
		logger.Fatalf("could not load config: %s", err)
	}

	if *flagDebug {
		v.Set("debug", true)
	}

	if *flagTrace {
		v.Set("trace", true)
	}

	if v.GetBool("debug") {
		logger.Info("enabling debug")
		ourlog.SetLevel(logrus.DebugLevel)
	}

	if v.GetBool("trace") {
		logger.Info("enabling trace")
		ourlog.SetLevel(logrus.TraceLevel)
	}

	config.Logger = ourlog.WithFields(logrus.Fields{"prefix": "config"})
	federation.SetLogger(ourlog.WithFields(logrus.Fields{"prefix": "federation"}))
	store.SetLogger(ourlog.WithFields(logrus.Fields{"prefix": "store"}))
	intake.SetLogger(ourlog.WithFields(logrus.Fields{"prefix": "intake"}))

	if *flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			logger.Errorf("failed to start gops agent: %s", err)
		}
		defer agent.Close()
	}

	logger.Infof("running version %s %s", version, githash)

	if err := run(v); err != nil {
		logger.Fatal(err)
	}
}

func run(v *viper.Viper) error {
	st, err := store.Open(v.GetString("store.path"))
	if err != nil {
		return err
	}
	defer st.Close()

	settings := config.NewSettings(v)
	eventChan := make(chan *bridge.Event, v.GetInt("intake.queue"))

	br, err := matrix.New(v, bridge.Credentials{
		Login:      v.GetString("matrix.login"),
		Pass:       v.GetString("matrix.password"),
		Server:     v.GetString("matrix.server"),
		Token:      v.GetString("matrix.token"),
		AppService: v.GetBool("matrix.appservice"),
	}, settings.GetHomeServerDomain(), eventChan)
	if err != nil {
		return fmt.Errorf("matrix login failed: %w", err)
	}

	receiver := federation.NewReceiver(st, st, st, settings, br)

	dispatcher := intake.NewDispatcher(receiver, intake.Config{
		Workers:   v.GetInt("intake.workers"),
		Queue:     v.GetInt("intake.queue"),
		SlowEvent: v.GetDuration("intake.slowevent"),
	}, prometheus.DefaultRegisterer)
	dispatcher.Start()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		dispatcher.Run(eventChan)
		return nil
	})

	g.Go(func() error {
		// the syncer is the only sender on eventChan
		defer close(eventChan)

		logger.Infof("syncing %s for %s", br.Protocol(), settings.GetHomeServerDomain())

		return br.Sync()
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		return br.Logout()
	})

	if bind := v.GetString("metrics.bind"); bind != "" {
		srv, err := newMetricsServer(v, bind)
		if err != nil {
			return err
		}

		g.Go(func() error {
			logger.Infof("serving metrics on %s", bind)

			var err error
			if srv.TLSConfig != nil {
				err = srv.ListenAndServeTLS("", "")
			} else {
				err = srv.ListenAndServe()
			}

			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			return nil
		})

		g.Go(func() error {
			<-ctx.Done()
			return srv.Close()
		})
	}

	return g.Wait()
}

func newMetricsServer(v *viper.Viper, bind string) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              bind,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	cert, key := v.GetString("metrics.tlscert"), v.GetString("metrics.tlskey")
	if cert == "" || key == "" {
		return srv, nil
	}

	kpr, err := NewKeypairReloader(cert, key)
	if err != nil {
		return nil, fmt.Errorf("loading metrics tls keypair: %w", err)
	}

	srv.TLSConfig = kpr.TLSConfig()

	return srv, nil
}
