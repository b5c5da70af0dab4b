package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/ebike-fleet/fleeterr"
	"github.com/semanticallynull/ebike-fleet/notify"
)

func (a *API) notificationRoutes(authed, admin *gin.RouterGroup) {
	authed.GET("/me/notifications", a.inboxHandler)
	admin.GET("/notifications/channels", a.channelsHandler)
	admin.POST("/notifications", a.sendNotificationHandler)
}

func (a *API) channelsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"channels": a.svc.Notifier.Channels(),
		"default":  a.svc.Notifier.Default(),
	})
}

type sendRequest struct {
	notify.Message
	// Channel names one channel; empty means the default. Broadcast sends on all of them.
	Channel   string `json:"channel"`
	Broadcast bool   `json:"broadcast"`
}

type deliveryResponse struct {
	Channel   string `json:"channel"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

func (a *API) sendNotificationHandler(c *gin.Context) {
	var req sendRequest
	if !bind(c, &req) {
		return
	}
	if req.Recipient == "" {
		badRequest(c, "INVALID_INPUT", "recipient is required")
		return
	}

	if !req.Broadcast {
		err := a.svc.Notifier.Notify(c.Request.Context(), req.Message, req.Channel)
		if fleeterr.IsDomain(err) {
			respondError(c, err)
			return
		}
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"code": "DELIVERY_FAILED", "message": err.Error()})
			return
		}
		c.Status(http.StatusAccepted)
		return
	}

	results := a.svc.Notifier.NotifyAll(c.Request.Context(), req.Message)
	resp := make([]deliveryResponse, 0, len(results))
	for _, r := range results {
		d := deliveryResponse{Channel: r.Channel, Delivered: r.OK()}
		if r.Err != nil {
			d.Error = r.Err.Error()
		}
		resp = append(resp, d)
	}
	status := http.StatusOK
	if !results.Delivered() {
		status = http.StatusBadGateway
	}
	c.JSON(status, resp)
}

func (a *API) inboxHandler(c *gin.Context) {
	if a.svc.Inbox == nil {
		c.JSON(http.StatusOK, []notify.Message{})
		return
	}
	p, ok := a.currentProfile(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, a.svc.Inbox.Inbox(p.ID.String()))
}
