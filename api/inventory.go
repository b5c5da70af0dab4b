package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/ebike-fleet/battery"
	"github.com/semanticallynull/ebike-fleet/bike"
	"github.com/semanticallynull/ebike-fleet/internal/middleware"
	"github.com/semanticallynull/ebike-fleet/profile"
)

func (a *API) bikeRoutes(authed, admin *gin.RouterGroup) {
	authed.GET("/me/bikes", a.myBikesHandler)
	admin.GET("/bikes", a.listBikesHandler)
	admin.POST("/bikes", a.createBikeHandler)
	admin.GET("/bikes/:id", a.getBikeHandler)
	admin.PATCH("/bikes/:id", a.updateBikeHandler)
	admin.DELETE("/bikes/:id", a.retireBikeHandler)
	admin.GET("/bikes/:id/batteries", a.bikeBatteriesHandler)
}

func (a *API) listBikesHandler(c *gin.Context) {
	limit, offset, ok := page(c)
	if !ok {
		return
	}
	bikes, err := a.svc.Bikes.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bikes)
}

func (a *API) createBikeHandler(c *gin.Context) {
	var in bike.CreateInput
	if !bind(c, &in) {
		return
	}
	b, err := a.svc.Bikes.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (a *API) getBikeHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	b, err := a.svc.Bikes.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (a *API) updateBikeHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in bike.UpdateInput
	if !bind(c, &in) {
		return
	}
	b, err := a.svc.Bikes.Update(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (a *API) retireBikeHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	b, err := a.svc.Bikes.Retire(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (a *API) bikeBatteriesHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if _, err := a.svc.Bikes.Get(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	batteries, err := a.svc.Batteries.ListForBike(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batteries)
}

// currentProfile resolves the profile of the authenticated actor.
func (a *API) currentProfile(c *gin.Context) (profile.Profile, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
		return profile.Profile{}, false
	}
	p, err := a.svc.Profiles.GetByUserID(c.Request.Context(), actor.UserID)
	if err != nil {
		respondError(c, err)
		return profile.Profile{}, false
	}
	return p, true
}

func (a *API) myBikesHandler(c *gin.Context) {
	p, ok := a.currentProfile(c)
	if !ok {
		return
	}
	bikes, err := a.svc.Bikes.ListForProfile(c.Request.Context(), p.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bikes)
}

func (a *API) batteryRoutes(authed, admin *gin.RouterGroup) {
	authed.GET("/me/batteries", a.myBatteriesHandler)
	admin.GET("/batteries", a.listBatteriesHandler)
	admin.POST("/batteries", a.createBatteryHandler)
	admin.GET("/batteries/:id", a.getBatteryHandler)
	admin.PATCH("/batteries/:id", a.updateBatteryHandler)
	admin.DELETE("/batteries/:id", a.retireBatteryHandler)
}

func (a *API) listBatteriesHandler(c *gin.Context) {
	limit, offset, ok := page(c)
	if !ok {
		return
	}
	batteries, err := a.svc.Batteries.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batteries)
}

func (a *API) createBatteryHandler(c *gin.Context) {
	var in battery.CreateInput
	if !bind(c, &in) {
		return
	}
	b, err := a.svc.Batteries.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (a *API) getBatteryHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	b, err := a.svc.Batteries.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (a *API) updateBatteryHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in battery.UpdateInput
	if !bind(c, &in) {
		return
	}
	b, err := a.svc.Batteries.Update(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (a *API) retireBatteryHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	b, err := a.svc.Batteries.Retire(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (a *API) myBatteriesHandler(c *gin.Context) {
	p, ok := a.currentProfile(c)
	if !ok {
		return
	}
	batteries, err := a.svc.Batteries.ListForProfile(c.Request.Context(), p.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batteries)
}

func (a *API) profileRoutes(authed, admin *gin.RouterGroup) {
	authed.GET("/me", a.meHandler)
	admin.GET("/profiles", a.listProfilesHandler)
	admin.POST("/profiles", a.createProfileHandler)
	admin.GET("/profiles/:id", a.getProfileHandler)
	admin.PUT("/profiles/:id", a.updateProfileHandler)
}

func (a *API) meHandler(c *gin.Context) {
	p, ok := a.currentProfile(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, p)
}

func (a *API) listProfilesHandler(c *gin.Context) {
	limit, offset, ok := page(c)
	if !ok {
		return
	}
	profiles, err := a.svc.Profiles.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profiles)
}

func (a *API) createProfileHandler(c *gin.Context) {
	var in profile.Input
	if !bind(c, &in) {
		return
	}
	p, err := a.svc.Profiles.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (a *API) getProfileHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := a.svc.Profiles.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (a *API) updateProfileHandler(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in profile.Input
	if !bind(c, &in) {
		return
	}
	p, err := a.svc.Profiles.Update(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
