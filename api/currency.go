package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/semanticallynull/ebike-fleet/currency"
)

func (a *API) currencyRoutes(authed, admin *gin.RouterGroup) {
	authed.GET("/currency/rates", a.ratesHandler)
	authed.GET("/currency/convert", a.convertHandler)
	authed.GET("/settings/currency", a.getReportingCurrencyHandler)
	admin.PUT("/settings/currency", a.setReportingCurrencyHandler)
	admin.POST("/currency/refresh", a.refreshRatesHandler)
}

func (a *API) ratesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, a.svc.Converter.Rates())
}

type conversionResponse struct {
	Amount    decimal.Decimal `json:"amount"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Converted decimal.Decimal `json:"converted"`
}

// convertHandler converts ?amount from ?from to ?to. With ?as_of the rate must be
// dated that day.
func (a *API) convertHandler(c *gin.Context) {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		badRequest(c, "INVALID_AMOUNT", "amount must be a decimal number")
		return
	}
	asOf, ok := queryTime(c, "as_of")
	if !ok {
		return
	}

	from, to := c.Query("from"), c.Query("to")
	converted, err := a.svc.Converter.Convert(amount, from, to, asOf)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversionResponse{
		Amount:    amount,
		From:      from,
		To:        to,
		Converted: converted.Round(2),
	})
}

func (a *API) refreshRatesHandler(c *gin.Context) {
	report, err := a.svc.Converter.Refresh(c.Request.Context())
	if errors.Is(err, currency.ErrNoSource) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "NO_RATE_SOURCE", "message": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"code": "RATE_SOURCE_FAILED", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

type reportingCurrency struct {
	Currency string `json:"currency"`
}

func (a *API) getReportingCurrencyHandler(c *gin.Context) {
	code, err := a.svc.Settings.ReportingCurrency(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reportingCurrency{Currency: code})
}

func (a *API) setReportingCurrencyHandler(c *gin.Context) {
	var req reportingCurrency
	if !bind(c, &req) {
		return
	}
	code, err := a.svc.Settings.SetReportingCurrency(c.Request.Context(), req.Currency)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reportingCurrency{Currency: code})
}
