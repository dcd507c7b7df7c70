package main

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/sessions"
	"github.com/joho/godotenv"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/oliverisaac/goli"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	_ "github.com/ncruces/go-sqlite3/embed"
	sqlite "github.com/ncruces/go-sqlite3/gormlite"
	"gorm.io/gorm"

	"github.com/cropmate/cropmate/lib/pushsender"
	"github.com/cropmate/cropmate/lib/weatherclient"
	"github.com/cropmate/cropmate/static"
	"github.com/cropmate/cropmate/types"
)

func init() {
	goli.InitLogrus(logrus.DebugLevel)
}

const SessionKey = "session"
const UserKey = "session-user"
const SessionUserIDKey = "userid"

var validate = validator.New()

func main() {
	err := run()
	if err != nil {
		logrus.Fatal(err)
	}
}

func run() error {
	err := godotenv.Load(".env")
	if err != nil {
		logrus.Error(errors.Wrap(err, "Failed to load .env"))
	}

	tz := os.Getenv("TZ")
	if tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return errors.Wrap(err, "failed to load timezone")
		}
		time.Local = loc
	}

	cfg, err := types.ConfigFromEnv()
	if err != nil {
		return errors.Wrap(err, "Loading config from env")
	}

	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		return errors.Wrap(err, "failed to connect database")
	}

	if err := migrate(db); err != nil {
		return err
	}

	sender := pushsender.New(cfg.VapidSubject, cfg.VapidPublicKey, cfg.VapidPrivateKey)

	cronStop, err := startAlertWorker(cfg, db, sender)
	if err != nil {
		return errors.Wrap(err, "starting alert worker")
	}
	defer cronStop()

	e := newServer(cfg, db, sender)

	return e.Start(cfg.ListenAddr)
}

func migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&types.User{},
		&types.PushSubscription{},
		&types.Pest{},
		&types.ScoutingRun{},
		&types.Observation{},
		&types.AlertRule{},
	)
	if err != nil {
		return errors.Wrap(err, "Failed to migrate")
	}
	return seedPests(db)
}

func newServer(cfg types.Config, db *gorm.DB, sender *pushsender.Sender) *echo.Echo {
	e := echo.New()

	e.StaticFS("/static", static.FS)

	origErrHandler := e.HTTPErrorHandler
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		logrus.Error(err)
		origErrHandler(err, c)
	}

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		Skipper:           middleware.DefaultSkipper,
		StackSize:         4 << 10, // 4 KB
		DisableStackAll:   false,
		DisablePrintStack: false,
		LogLevel:          log.ERROR,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logrus.Error(errors.Wrap(err, "recovered panic:"))
			for _, l := range strings.Split(string(stack), "\n") {
				logrus.Errorf("stack: %s", strings.ReplaceAll(l, "\t", "  "))
			}
			return nil
		},
		DisableErrorHandler: false,
	}))

	e.Use(middleware.Secure())

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "method=${method}, uri=${uri}, status=${status}\n",
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/healthz"
		},
	}))

	store := sessions.NewCookieStore(cfg.CookieSecret)
	e.Use(session.Middleware(store))
	e.Use(UserMiddleware(db))

	// The worker script must be served from the root so its scope covers "/".
	e.GET("/serviceWorker.js", func(c echo.Context) error {
		sw, err := static.FS.ReadFile("serviceWorker.js")
		if err != nil {
			return errors.Wrap(err, "reading service worker from embed fs")
		}
		return c.Blob(http.StatusOK, "application/javascript", sw)
	})

	e.GET("/", func(c echo.Context) error {
		index, err := static.FS.ReadFile("index.html")
		if err != nil {
			return errors.Wrap(err, "reading index from embed fs")
		}
		return c.HTMLBlob(http.StatusOK, index)
	})
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	api := e.Group("/api")

	api.POST("/auth/sign-in", signInWithEmailAndPassword(db))
	if cfg.AllowSignup || len(cfg.AllowSignupEmails) > 0 {
		api.POST("/auth/sign-up", signUpWithEmailAndPassword(db, cfg))
	}
	api.POST("/auth/sign-out", signOut())
	api.GET("/auth/me", currentUser())

	api.GET("/push/key", vapidPublicKey(cfg))
	api.POST("/push/subscribe", saveSubscription(db))
	api.POST("/push/unsubscribe", removeSubscription(db))
	api.POST("/push/test", testPush(cfg, db, sender))

	api.GET("/pests", listPests(db))
	api.GET("/pests/:id", getPest(db))
	api.POST("/pests", createPest(db))

	api.GET("/scouting", listScoutingRuns(db))
	api.GET("/scouting/:token", getScoutingRun(db))
	api.POST("/scouting", createScoutingRun(db))

	api.GET("/alerts", listAlertRules(db))
	api.POST("/alerts", createAlertRule(db))
	api.DELETE("/alerts/:id", deleteAlertRule(db))

	api.GET("/analytics/summary", analyticsSummary(db))
	api.GET("/analytics/severity", analyticsSeverity(db))
	api.GET("/analytics/trend", analyticsTrend(db))

	api.GET("/weather", getWeather(weatherclient.New(cfg.WeatherBaseURL)))

	return e
}

func UserMiddleware(db *gorm.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, _ := session.Get(SessionKey, c)
			if sess.Values[SessionUserIDKey] != nil {
				userID := sess.Values[SessionUserIDKey].(uint)
				user, err := getUserByID(db, userID)
				if err != nil {
					return errors.Wrap(err, "getting user by id")
				}
				c.Set(UserKey, user)
			}
			return next(c)
		}
	}
}

func GetSessionUser(c echo.Context) (types.User, bool) {
	u := c.Get(UserKey)
	if u != nil {
		user := u.(types.User)
		logrus.Debugf("Found session user %s", user.Email)
		return user, true
	}
	return types.User{}, false
}
