package main

import (
	"net/http"
	"net/mail"
	"slices"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/cropmate/cropmate/types"
)

func getUserByID(db *gorm.DB, id uint) (types.User, error) {
	var user types.User
	err := db.Preload("PushSubscriptions").First(&user, "id = ?", id).Error

	return user, errors.Wrap(err, "Finding user")
}

func userExists(email string, db *gorm.DB) bool {
	var user types.User
	err := db.First(&user, "email = ?", email).Error

	return err != gorm.ErrRecordNotFound
}

type signUpRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

func signUpWithEmailAndPassword(db *gorm.DB, cfg types.Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req signUpRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
		}
		if err := validate.Struct(req); err != nil {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
		}

		parsedEmail, err := mail.ParseAddress(req.Email)
		if err != nil {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "Oops! That email address appears to be invalid"})
		}
		email := parsedEmail.Address

		if len(cfg.AllowSignupEmails) > 0 && !slices.Contains(cfg.AllowSignupEmails, email) {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "Oops! That email address is not allowed to sign up"})
		}

		if userExists(email, db) {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "Oops! It appears you are already registered"})
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 10)
		if err != nil {
			return errors.Wrap(err, "hashing sign up password")
		}

		// First user becomes the farm admin.
		var count int64
		if err := db.Model(&types.User{}).Count(&count).Error; err != nil {
			return errors.Wrap(err, "counting users")
		}

		role := "user"
		if count == 0 {
			role = "admin"
		}

		user := types.User{
			Name:      req.Name,
			Email:     email,
			Password:  string(hash),
			Role:      role,
			CreatedAt: time.Now(),
		}

		if err := db.Create(&user).Error; err != nil {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": errors.Wrap(err, "Create user error").Error()})
		}

		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	}
}

type signInRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func signInWithEmailAndPassword(db *gorm.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req signInRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
		}
		if err := validate.Struct(req); err != nil {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
		}

		if _, err := mail.ParseAddress(req.Email); err != nil {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "Invalid email"})
		}

		var user types.User
		db.First(&user, "email = ?", req.Email)
		if compareErr := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); compareErr != nil {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "Invalid email or password"})
		}

		sess, _ := session.Get(SessionKey, c)
		sess.Options = &sessions.Options{
			Path:     "/",
			MaxAge:   3600 * 24 * 365,
			HttpOnly: true,
		}

		sess.Values[SessionUserIDKey] = user.ID

		if err := sess.Save(c.Request(), c.Response()); err != nil {
			return errors.Wrap(err, "saving session")
		}

		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	}
}

func signOut() echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, _ := session.Get(SessionKey, c)
		sess.Options.MaxAge = -1
		if err := sess.Save(c.Request(), c.Response()); err != nil {
			return errors.Wrap(err, "saving session")
		}

		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	}
}

func currentUser() echo.HandlerFunc {
	return func(c echo.Context) error {
		user, ok := GetSessionUser(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		return c.JSON(http.StatusOK, user)
	}
}
