package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/ebike-fleet/internal/middleware"
	"github.com/semanticallynull/ebike-fleet/rental"
)

func (a *API) rentalRoutes(authed, admin *gin.RouterGroup) {
	authed.GET("/rentals", a.listRentalsHandler)
	authed.GET("/rentals/:id", a.getRentalHandler)
	admin.POST("/rentals", a.createRentalHandler)
	admin.PATCH("/rentals/:id", a.updateRentalHandler)
	admin.DELETE("/rentals/:id", a.deleteRentalHandler)
}

// listRentalsHandler searches rentals by bike serial or driver name with ?q. Drivers
// only ever see their own rentals.
func (a *API) listRentalsHandler(c *gin.Context) {
	limit, offset, ok := page(c)
	if !ok {
		return
	}
	f := rental.Filter{Search: c.Query("q"), Limit: limit, Offset: offset}
	if f.BikeID, ok = queryID(c, "bike_id"); !ok {
		return
	}
	if f.ProfileID, ok = queryID(c, "profile_id"); !ok {
		return
	}

	if actor, _ := middleware.GetActor(c); !actor.Admin() {
		p, ok := a.currentProfile(c)
		if !ok {
			return
		}
		f.ProfileID = &p.ID
	}

	rentals, err := a.svc.Rentals.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rentals)
}

func (a *API) getRentalHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := a.svc.Rentals.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if actor, _ := middleware.GetActor(c); !actor.Admin() {
		p, ok := a.currentProfile(c)
		if !ok {
			return
		}
		if r.ProfileID != p.ID {
			c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "rental not found"})
			return
		}
	}
	c.JSON(http.StatusOK, r)
}

func (a *API) createRentalHandler(c *gin.Context) {
	var in rental.CreateInput
	if !bind(c, &in) {
		return
	}
	r, err := a.svc.Rentals.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (a *API) updateRentalHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in rental.UpdateInput
	if !bind(c, &in) {
		return
	}
	r, err := a.svc.Rentals.Update(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (a *API) deleteRentalHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := a.svc.Rentals.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
