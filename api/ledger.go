package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/ebike-fleet/ledger"
)

func (a *API) ledgerRoutes(admin *gin.RouterGroup) {
	admin.GET("/transactions", a.listTransactionsHandler)
	admin.POST("/transactions", a.createTransactionHandler)
	admin.GET("/transactions/:id", a.getTransactionHandler)
	admin.PUT("/transactions/:id", a.updateTransactionHandler)
	admin.DELETE("/transactions/:id", a.deleteTransactionHandler)

	admin.GET("/maintenance", a.listMaintenanceHandler)
	admin.POST("/maintenance", a.createMaintenanceHandler)
	admin.GET("/maintenance/:id", a.getMaintenanceHandler)
	admin.PUT("/maintenance/:id", a.updateMaintenanceHandler)
	admin.DELETE("/maintenance/:id", a.deleteMaintenanceHandler)

	admin.GET("/analytics/summary", a.summaryHandler)
}

func (a *API) listTransactionsHandler(c *gin.Context) {
	limit, offset, ok := page(c)
	if !ok {
		return
	}
	f := ledger.TransactionFilter{Limit: limit, Offset: offset}
	if v := c.Query("type"); v != "" {
		t := ledger.Type(v)
		if t != ledger.TypeIncome && t != ledger.TypeExpense {
			badRequest(c, "INVALID_TYPE", "type must be income or expense")
			return
		}
		f.Type = &t
	}
	if f.From, ok = queryTime(c, "from"); !ok {
		return
	}
	if f.To, ok = queryTime(c, "to"); !ok {
		return
	}
	if f.RentalID, ok = queryID(c, "rental_id"); !ok {
		return
	}
	if f.MaintenanceID, ok = queryID(c, "maintenance_id"); !ok {
		return
	}

	txs, err := a.svc.Ledger.ListTransactions(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txs)
}

func (a *API) createTransactionHandler(c *gin.Context) {
	var in ledger.TransactionInput
	if !bind(c, &in) {
		return
	}
	t, err := a.svc.Ledger.RecordTransaction(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (a *API) getTransactionHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, err := a.svc.Ledger.GetTransaction(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (a *API) updateTransactionHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in ledger.TransactionInput
	if !bind(c, &in) {
		return
	}
	t, err := a.svc.Ledger.UpdateTransaction(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (a *API) deleteTransactionHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Ledger.DeleteTransaction(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) listMaintenanceHandler(c *gin.Context) {
	limit, offset, ok := page(c)
	if !ok {
		return
	}
	f := ledger.MaintenanceFilter{Limit: limit, Offset: offset}
	if f.BikeID, ok = queryID(c, "bike_id"); !ok {
		return
	}
	if f.BatteryID, ok = queryID(c, "battery_id"); !ok {
		return
	}
	if f.From, ok = queryTime(c, "from"); !ok {
		return
	}
	if f.To, ok = queryTime(c, "to"); !ok {
		return
	}

	records, err := a.svc.Ledger.ListMaintenance(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (a *API) createMaintenanceHandler(c *gin.Context) {
	var in ledger.MaintenanceInput
	if !bind(c, &in) {
		return
	}
	m, err := a.svc.Ledger.RecordMaintenance(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (a *API) getMaintenanceHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	m, err := a.svc.Ledger.GetMaintenance(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (a *API) updateMaintenanceHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in ledger.MaintenanceInput
	if !bind(c, &in) {
		return
	}
	m, err := a.svc.Ledger.UpdateMaintenance(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (a *API) deleteMaintenanceHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Ledger.DeleteMaintenance(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) summaryHandler(c *gin.Context) {
	req := ledger.SummaryRequest{Currency: c.Query("currency")}
	var ok bool
	if req.From, ok = queryTime(c, "from"); !ok {
		return
	}
	if req.To, ok = queryTime(c, "to"); !ok {
		return
	}

	summary, err := a.svc.Ledger.Summary(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
