package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

const timeout time.Duration = 10 * time.Second

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("response write failed")
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatus(err), map[string]string{"error": err.Error()})
}

// POST /game/create
func serveCreateGame(cfg *Config, gm *GameManager, auth *authClient) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)

		token, err := bearerToken(r)
		if err != nil {
			writeError(w, err)
			return
		}

		hostID, err := auth.verify(token)
		if err != nil {
			writeError(w, err)
			return
		}

		game := gm.create(hostID)

		writeJSON(w, http.StatusOK, map[string]string{
			"pin":    game.pin,
			"status": "created",
		})
	}
}

// GET /game/:pin/status
func serveGameStatus(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		securityHeaders(cfg, w)

		game, ok := gm.lookup(p.ByName("pin"))
		if !ok {
			writeError(w, errNotFound("Game not found"))
			return
		}

		status, count, players := game.snapshot()

		writeJSON(w, http.StatusOK, map[string]any{
			"status":       status,
			"player_count": count,
			"players":      players,
		})
	}
}

// POST /game/:pin/start
func serveStartGame(cfg *Config, gm *GameManager, auth *authClient, router *Router) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		securityHeaders(cfg, w)

		game, ok := gm.lookup(p.ByName("pin"))
		if !ok {
			writeError(w, errNotFound("Game not found"))
			return
		}

		token, err := bearerToken(r)
		if err != nil {
			writeError(w, err)
			return
		}

		hostID, err := auth.verify(token)
		if err != nil {
			writeError(w, err)
			return
		}

		// The REST path has no minimum-player gate; only the room event does.
		if err := game.start(hostID, 0); err != nil {
			writeError(w, err)
			return
		}

		router.Broadcast(game.pin, gameStartedMessage{Type: "game_started", Status: string(statusActive)})

		writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
	}
}

// POST /game/:pin/end
func serveEndGame(cfg *Config, gm *GameManager, auth *authClient, router *Router) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		securityHeaders(cfg, w)

		game, ok := gm.lookup(p.ByName("pin"))
		if !ok {
			writeError(w, errNotFound("Game not found"))
			return
		}

		token, err := bearerToken(r)
		if err != nil {
			writeError(w, err)
			return
		}

		hostID, err := auth.verify(token)
		if err != nil {
			writeError(w, err)
			return
		}

		finalScores, finalStreaks, err := game.end(hostID)
		if err != nil {
			writeError(w, err)
			return
		}

		router.Broadcast(game.pin, gameEndedMessage{
			Type:         "game_ended",
			FinalScores:  finalScores,
			FinalStreaks: finalStreaks,
		})

		log.Info().Str("pin", game.pin).Msg("game ended")

		writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
	}
}

// GET /game/:pin/qr generates a PNG QR code for the session join URL.
func serveGameQR(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		pin := p.ByName("pin")

		if _, ok := gm.lookup(pin); !ok {
			writeError(w, errNotFound("Game not found"))
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		path := strings.TrimSuffix(r.URL.Path, "/qr")
		url := scheme + "://" + r.Host + path

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		securityHeaders(cfg, w)
		w.Header().Set("Content-Type", "image/png")
		written, _ := w.Write(png)

		log.Debug().Str("pin", pin).Str("size", humanReadableSize(int64(written))).Str("client", realIP(r)).Msg("qr code served")
	}
}

func serveHealthCheck(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)

		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"version":   releaseVersion,
			"service":   "game",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"features": map[string]bool{
				"game_management":   true,
				"real_time_updates": true,
			},
		})
	}
}

func serveVersion(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("triviad v" + releaseVersion + "\n"))
		if err != nil {
			log.Debug().Err(err).Msg("response write failed")
			return
		}

		log.Debug().
			Str("size", humanReadableSize(int64(written))).
			Str("client", realIP(r)).
			Dur("elapsed", time.Since(startTime).Round(time.Microsecond)).
			Msg("version page served")
	}
}

func serveRobots(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data := "User-agent: *\nDisallow: /\n"

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		if _, err := w.Write([]byte(data)); err != nil {
			log.Debug().Err(err).Msg("response write failed")
		}
	}
}

func registerGameRoutes(cfg *Config, mux *httprouter.Router, gm *GameManager, auth *authClient, router *Router, rs *roomServer) {
	mux.POST(cfg.prefix+"/game/create", serveCreateGame(cfg, gm, auth))
	mux.GET(cfg.prefix+"/game/:pin/status", serveGameStatus(cfg, gm))
	mux.POST(cfg.prefix+"/game/:pin/start", serveStartGame(cfg, gm, auth, router))
	mux.POST(cfg.prefix+"/game/:pin/end", serveEndGame(cfg, gm, auth, router))
	mux.GET(cfg.prefix+"/game/:pin/qr", serveGameQR(cfg, gm))
	mux.GET(cfg.prefix+"/ws", serveWS(rs))
}

// ServePage runs the trivia server until the context is cancelled or an
// interrupt arrives.
func ServePage(ctx context.Context, cfg *Config) error {
	if cfg.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", releaseVersion).Msg("starting triviad")

	mux := httprouter.New()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           mux,
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
	}

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		log.Error().Any("panic", i).Str("path", r.URL.Path).Msg("handler panic")

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	router := newRouter()
	gm := newGameManager(cfg, router)
	auth := newAuthClient(cfg)
	rs := &roomServer{cfg: cfg, gm: gm, router: router, auth: auth}

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg))
	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg))
	mux.GET(cfg.prefix+"/version", serveVersion(cfg))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	registerGameRoutes(cfg, mux, gm, auth, router, rs)

	go func() {
		var err error
		log.Info().Str("addr", cfg.scheme()+"://"+srv.Addr+cfg.prefix+"/").Msg("listening")
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return nil
}
