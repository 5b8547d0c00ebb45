package initializer

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/milkywaybrain/bitfeeds/internal/config"
	"github.com/milkywaybrain/bitfeeds/internal/connector"
	"github.com/milkywaybrain/bitfeeds/internal/exchange"
	"github.com/milkywaybrain/bitfeeds/internal/instrument"
	"github.com/milkywaybrain/bitfeeds/internal/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"golang.org/x/sync/errgroup"
)

// Start will initialize various required systems and then execute the app.
// It returns when mainCtx is canceled or when any exchange fails to start.
func Start(mainCtx context.Context, cfg *config.Config) error {

	// Setting up logger.
	// If the path given in the config for logging ends with .log then create a log file with the same name and
	// write log messages to it. Otherwise, create a new log file with a timestamp attached to it's name in the given path.
	var (
		logFile *os.File
		err     error
	)
	if strings.HasSuffix(cfg.Log.FilePath, ".log") {
		logFile, err = os.OpenFile(cfg.Log.FilePath, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0666)
		if err != nil {
			return fmt.Errorf("not able to open or create log file: %v", cfg.Log.FilePath)
		}
	} else {
		logFile, err = os.Create(cfg.Log.FilePath + "_" + strconv.Itoa(int(time.Now().Unix())) + ".log")
		if err != nil {
			return fmt.Errorf("not able to create log file: %v", cfg.Log.FilePath+"_"+strconv.Itoa(int(time.Now().Unix()))+".log")
		}
	}
	defer logFile.Close()

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	switch cfg.Log.Level {
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	fileLogger := zerolog.New(logFile).With().Timestamp().Logger()
	log.Logger = fileLogger
	log.Info().Msg("logger setup is done")

	if err = Validate(cfg); err != nil {
		log.Error().Stack().Err(errors.WithStack(err)).Msg("")
		return err
	}

	// Establish connections to different storage systems.
	sinks, err := connectStorages(mainCtx, cfg)
	defer func() {
		for _, sink := range sinks {
			if err := sink.Close(); err != nil {
				log.Error().Err(err).Str("storage", sink.Name()).Msg("closing storage")
			}
		}
	}()
	if err != nil {
		log.Error().Stack().Err(errors.WithStack(err)).Msg("")
		return err
	}
	connector.InitREST(&cfg.Connection.REST)

	// Start gateways of each exchange. If any exchange fails to start, force all the other exchanges to stop and
	// exit the app.
	appErrGroup, appCtx := errgroup.WithContext(mainCtx)

	for _, exch := range cfg.Exchanges {
		exch := exch
		appErrGroup.Go(func() error {
			return startExchange(appCtx, exch, sinks)
		})
	}

	err = appErrGroup.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Msg("exiting the app")
		return err
	}
	log.Info().Msg("app stopped")
	return nil
}

// Validate checks user defined config values.
func Validate(cfg *config.Config) error {
	if len(cfg.Exchanges) == 0 {
		return errors.New("no exchange configured")
	}
	for _, exch := range cfg.Exchanges {
		if exch.Name != "bittrex" {
			return errors.Errorf("exchange %v is not supported", exch.Name)
		}
		for _, market := range exch.Markets {
			if market.ID == "" {
				return errors.Errorf("%v market id should not be empty", exch.Name)
			}
			if market.RESTPingIntSec < 1 {
				return errors.New("rest_ping_interval_sec should be greater than zero")
			}
			if len(market.Storages) == 0 {
				return errors.Errorf("%v market %v has no storage", exch.Name, market.ID)
			}
			for _, str := range market.Storages {
				switch str {
				case "terminal", "sqlite", "mysql", "postgres", "elastic_search":
				default:
					return errors.Errorf("storage %v is not supported", str)
				}
			}
		}
	}
	return nil
}

// connectStorages connects every storage used by any market once.
// Already connected storages are returned on error so they can be closed.
func connectStorages(ctx context.Context, cfg *config.Config) (map[string]storage.Sink, error) {
	sinks := make(map[string]storage.Sink)
	for _, exch := range cfg.Exchanges {
		for _, market := range exch.Markets {
			for _, str := range market.Storages {
				if _, ok := sinks[str]; ok {
					continue
				}
				var (
					sink storage.Sink
					err  error
				)
				switch str {
				case "terminal":
					sink = storage.InitTerminal(os.Stdout)
				case "sqlite":
					sink, err = initSQL(storage.InitSQLite(ctx, &cfg.Connection.SQLite))
				case "mysql":
					sink, err = initSQL(storage.InitMySQL(ctx, &cfg.Connection.MySQL))
				case "postgres":
					sink, err = initSQL(storage.InitPostgres(ctx, &cfg.Connection.Postgres))
				case "elastic_search":
					var es *storage.ElasticSearch
					es, err = storage.InitElasticSearch(ctx, &cfg.Connection.ES)
					if err == nil {
						sink = es
					}
				}
				if err != nil {
					return sinks, errors.Wrap(err, str+" connection")
				}
				sinks[str] = sink
				log.Info().Msg(str + " connected")
			}
		}
	}
	return sinks, nil
}

// initSQL avoids storing a typed nil *storage.SQL in the Sink interface.
func initSQL(s *storage.SQL, err error) (storage.Sink, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

// startExchange starts gateway workers of every configured market of the exchange
// and waits till the app context is canceled.
func startExchange(ctx context.Context, exch config.Exchange, sinks map[string]storage.Sink) error {
	rest, err := connector.GetREST()
	if err != nil {
		log.Error().Stack().Err(errors.WithStack(err)).Str("exchange", exch.Name).Msg("")
		return err
	}
	adapter, err := exchange.NewAdapter(exch.Name, rest, config.BittrexRESTBaseURL)
	if err != nil {
		log.Error().Stack().Err(errors.WithStack(err)).Str("exchange", exch.Name).Msg("")
		return err
	}
	for _, market := range exch.Markets {
		name := market.CommitName
		if name == "" {
			name = market.ID
		}
		marketSinks := make([]storage.Sink, 0, len(market.Storages))
		for _, str := range market.Storages {
			marketSinks = append(marketSinks, sinks[str])
		}
		gw := exchange.NewGateway(adapter, marketSinks, time.Duration(market.RESTPingIntSec)*time.Second)
		inst := instrument.New(exch.Name, name, market.ID)
		if _, err := gw.Start(ctx, inst); err != nil {
			log.Error().Stack().Err(errors.WithStack(err)).Str("exchange", exch.Name).Str("instrument", name).Msg("gateway start")
			return err
		}
		log.Info().Str("exchange", exch.Name).Str("instrument", name).Msg("gateway started")
	}
	<-ctx.Done()
	return ctx.Err()
}
