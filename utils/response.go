package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

func Message(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"message": msg})
}

func Unauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, gin.H{"message": msg})
}

func Forbid(c *gin.Context, msg string) {
	c.JSON(http.StatusForbidden, gin.H{"message": msg})
}

func NotFoundResponse(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, gin.H{"message": msg})
}

func InternalError(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, gin.H{"message": msg})
}

// Fail writes the response for a classified error and logs server faults.
func Fail(c *gin.Context, err error) {
	var e *Error
	msg := "internal server error"
	if errors.As(err, &e) {
		msg = e.Message
	}

	switch KindOf(err) {
	case KindValidation:
		BadRequest(c, msg)
	case KindNotFound:
		NotFoundResponse(c, msg)
	case KindForbidden:
		Forbid(c, msg)
	case KindConflict:
		logrus.WithFields(logrus.Fields{
			"path":  c.FullPath(),
			"error": err,
		}).Warn("request lost a concurrent update race")
		InternalError(c, msg)
	default:
		logrus.WithFields(logrus.Fields{
			"path":  c.FullPath(),
			"error": err,
		}).Error("request failed")
		InternalError(c, "internal server error")
	}
}
