package api

import (
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/grvram01/person-service-repo/domain"
)

// personBodyMaxSize bounds create/update payloads. Person records are four
// short strings; anything near this limit is garbage.
const personBodyMaxSize = 64 * 1024

// Register wires up all API routes on the provided Echo instance.
// DELETE /persons/{id} is advertised but deliberately absent: echo answers
// it with 405 until delete semantics get designed.
func Register(e *echo.Echo, svc PersonService, logger *log.Logger) {
	e.GET("/persons", getPersons(svc, logger))
	e.GET("/persons/:personId", getPerson(svc))
	e.POST("/persons", postPerson(svc, logger))
	e.PUT("/persons/:personId", putPerson(svc))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getPersons(svc PersonService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newRequestMetrics(ctx, logger, "/persons")
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		fetchStart := time.Now()
		persons, fetchErr := svc.GetAll(ctx)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.String(http.StatusInternalServerError, fetchErr.Error())
			return err
		}
		metrics.SetRecordsReturned(len(persons))
		if persons == nil {
			persons = []domain.Person{}
		}

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, persons)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func getPerson(svc PersonService) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		p, err := svc.Get(ctx, c.Param("personId"))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return c.String(http.StatusNotFound, "person not found")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, p)
	}
}

func postPerson(svc PersonService, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newRequestMetrics(ctx, logger, "/persons")
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		fields, decErr := decodeFields(c)
		if decErr != nil {
			metrics.SetErrorStage("decode")
			err = c.String(http.StatusBadRequest, "invalid person payload")
			return err
		}

		storeStart := time.Now()
		id, createErr := svc.Create(ctx, fields)
		metrics.ObserveStore(time.Since(storeStart))
		if createErr != nil {
			var verr *domain.ValidationError
			if errors.As(createErr, &verr) {
				metrics.SetErrorStage("validation")
				err = c.String(http.StatusBadRequest, verr.Error())
				return err
			}
			metrics.SetErrorStage("storage")
			c.Logger().Error(createErr)
			err = c.String(http.StatusInternalServerError, "failed to create person")
			return err
		}

		err = c.JSON(http.StatusOK, createResponse{PersonID: id})
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func putPerson(svc PersonService) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		id := c.Param("personId")
		fields, err := decodeFields(c)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid person payload")
		}
		if err := svc.Update(ctx, id, fields); err != nil {
			var verr *domain.ValidationError
			switch {
			case errors.As(err, &verr):
				return c.String(http.StatusBadRequest, verr.Error())
			case errors.Is(err, domain.ErrNotFound):
				return c.String(http.StatusNotFound, "person not found")
			default:
				c.Logger().Error(err)
				return c.String(http.StatusInternalServerError, "failed to update person")
			}
		}
		return c.String(http.StatusOK, "person updated")
	}
}

// decodeFields reads a person payload, transparently inflating gzip-encoded
// bodies. Unknown fields and oversized payloads are rejected.
func decodeFields(c echo.Context) (domain.Fields, error) {
	body := io.Reader(c.Request().Body)
	if gzipEncoded(c.Request().Header.Get(echo.HeaderContentEncoding)) {
		gr, err := gzip.NewReader(body)
		if err != nil {
			return domain.Fields{}, err
		}
		defer gr.Close()
		body = gr
	}
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(body, personBodyMaxSize))
	dec.DisallowUnknownFields()
	var fields domain.Fields
	if err := dec.Decode(&fields); err != nil {
		return domain.Fields{}, err
	}
	return fields, nil
}

func gzipEncoded(header string) bool {
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}
