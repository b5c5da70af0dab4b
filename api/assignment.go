package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (a *API) assignmentRoutes(admin *gin.RouterGroup) {
	admin.PUT("/bikes/:id/driver", a.assignDriverHandler)
	admin.DELETE("/bikes/:id/driver", a.unassignDriverHandler)
	admin.PUT("/bikes/:id/batteries/:batteryId", a.assignBatteryHandler)
	admin.DELETE("/bikes/:id/batteries/:batteryId", a.unassignBatteryHandler)
}

type assignDriverRequest struct {
	ProfileID uuid.UUID `json:"profile_id"`
}

func (a *API) assignDriverHandler(c *gin.Context) {
	bikeID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req assignDriverRequest
	if !bind(c, &req) {
		return
	}
	if req.ProfileID == uuid.Nil {
		badRequest(c, "INVALID_INPUT", "profile_id is required")
		return
	}
	b, err := a.svc.Assignments.AssignDriver(c.Request.Context(), bikeID, req.ProfileID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (a *API) unassignDriverHandler(c *gin.Context) {
	bikeID, ok := pathID(c, "id")
	if !ok {
		return
	}
	b, err := a.svc.Assignments.UnassignDriver(c.Request.Context(), bikeID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (a *API) assignBatteryHandler(c *gin.Context) {
	bikeID, ok := pathID(c, "id")
	if !ok {
		return
	}
	batteryID, ok := pathID(c, "batteryId")
	if !ok {
		return
	}
	b, err := a.svc.Assignments.AssignBattery(c.Request.Context(), bikeID, batteryID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (a *API) unassignBatteryHandler(c *gin.Context) {
	bikeID, ok := pathID(c, "id")
	if !ok {
		return
	}
	batteryID, ok := pathID(c, "batteryId")
	if !ok {
		return
	}
	b, err := a.svc.Assignments.UnassignBattery(c.Request.Context(), bikeID, batteryID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
