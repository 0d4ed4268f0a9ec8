// Command cachefilter-demo runs the HTTP cache filter in front of a
// single origin, the way cmd/always-cache/main.go runs the teacher's
// filter: flags for origin/port/backend, an optional YAML rules file,
// and a small chi admin mux alongside the proxying handler.
package main

import (
	"flag"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	cachefilter "github.com/capoferro/httpcachefilter"
	"github.com/capoferro/httpcachefilter/cache"
	"github.com/capoferro/httpcachefilter/rfc7234/responsetransformer"
)

var (
	originFlag   string
	portFlag     int
	providerFlag string
	sqlitePath   string
	rulesFlag    string
	rangeLimit   int
	verboseTrace bool
)

func init() {
	flag.StringVar(&originFlag, "origin", "", "Origin URL to proxy to")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&providerFlag, "provider", "memory", "Cache backend: memory or sqlite")
	flag.StringVar(&sqlitePath, "sqlite-path", "", "SQLite file path (provider=sqlite only; empty = shared in-memory)")
	flag.StringVar(&rulesFlag, "rules", "", "Path to a YAML per-path Cache-Control override rules file")
	flag.IntVar(&rangeLimit, "byte-range-parse-limit", -1, "Max ranges accepted in a single Range header (-1 = use the 100-byte length cap instead)")
	flag.BoolVar(&verboseTrace, "vv", false, "Verbosity: trace logging")
}

func main() {
	flag.Parse()

	logLevel := zerolog.DebugLevel
	if verboseTrace {
		logLevel = zerolog.TraceLevel
	}
	log.Logger = log.Level(logLevel).Output(zerolog.ConsoleWriter{Out: os.Stdout})

	if originFlag == "" {
		log.Fatal().Msg("Please specify -origin")
	}
	origin, err := url.Parse(originFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -origin")
	}

	var backend cache.Backend
	switch providerFlag {
	case "memory":
		backend = cache.NewMemoryBackend()
	case "sqlite":
		sb, err := cache.NewSQLiteBackend(sqlitePath)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not open SQLite backend")
		}
		backend = sb
	default:
		log.Fatal().Msgf("Unsupported cache provider: %s", providerFlag)
	}

	var rules responsetransformer.Rules
	if rulesFlag != "" {
		rules, err = loadRules(rulesFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not load rules file")
		}
	}

	config := cachefilter.DefaultConfig()
	config.ByteRangeParseLimit = rangeLimit

	handler := cachefilter.NewHandler(origin, backend, config, rules)

	mux := chi.NewRouter()
	mux.Get("/cache-info", func(w http.ResponseWriter, r *http.Request) {
		info := backend.CacheInfo()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(info.Name))
	})
	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.NotFound(handler.ServeHTTP)

	addr := ":" + strconv.Itoa(portFlag)
	log.Info().Str("addr", addr).Str("origin", origin.String()).Msg("cachefilter-demo listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func loadRules(path string) (responsetransformer.Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rules responsetransformer.Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

