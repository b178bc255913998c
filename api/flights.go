package api

import (
	"net/http"
	"strconv"

	"github.com/Domenick1991/flightsim/internal/service/flights"
	"github.com/gin-gonic/gin"
)

type FlightHandler struct {
	service flights.FlightUseCase
}

func NewFlightHandler(service flights.FlightUseCase) *FlightHandler {
	return &FlightHandler{service: service}
}

func (h *FlightHandler) Register(router *gin.RouterGroup) {
	router.GET("/flights", h.list)
	router.GET("/flights/search", h.search)
	router.GET("/flights/:id", h.get)
	router.GET("/flights/:id/price", h.price)
	router.GET("/flights/:id/seats", h.seats)
	router.GET("/flights/:id/fare-history", h.fareHistory)
	router.GET("/airports", h.airports)
}

type pageQuery struct {
	Skip  int `form:"skip" binding:"gte=0"`
	Limit int `form:"limit" binding:"gte=0"`
}

type searchQuery struct {
	pageQuery
	Origin      string `form:"origin"`
	Destination string `form:"destination"`
	Date        string `form:"date"`
	SortBy      string `form:"sort_by"`
	Order       string `form:"order"`
}

func (h *FlightHandler) list(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err.Error())
		return
	}
	views, err := h.service.List(c.Request.Context(), q.Skip, q.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newFlightViews(views))
}

func (h *FlightHandler) search(c *gin.Context) {
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err.Error())
		return
	}
	views, err := h.service.Search(c.Request.Context(), flights.SearchQuery{
		Origin:      q.Origin,
		Destination: q.Destination,
		Date:        q.Date,
		SortBy:      q.SortBy,
		Order:       q.Order,
		Skip:        q.Skip,
		Limit:       q.Limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newFlightViews(views))
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}

func (h *FlightHandler) get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	flight, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newFlightResponse(*flight))
}

func (h *FlightHandler) price(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	q, err := h.service.Price(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, priceResponse{
		FlightID:       q.FlightID,
		FlightNumber:   q.FlightNumber,
		DynamicPrice:   amount(q.DynamicPriceCents),
		BaseFare:       amount(q.BaseFareCents),
		AvailableSeats: q.AvailableSeats,
		Factors:        q.Factors,
	})
}

func (h *FlightHandler) seats(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	m, err := h.service.Seats(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, seatMapResponse{
		FlightID:             m.FlightID,
		TotalSeats:           m.TotalSeats,
		AvailableSeats:       m.AvailableSeats,
		AvailableSeatNumbers: m.AvailableSeatNumbers,
	})
}

func (h *FlightHandler) fareHistory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err.Error())
		return
	}
	samples, err := h.service.FareHistory(c.Request.Context(), id, q.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]fareSampleResponse, len(samples))
	for i, s := range samples {
		out[i] = fareSampleResponse{Price: amount(s.PriceCents), RecordedAt: s.RecordedAt}
	}
	c.JSON(http.StatusOK, out)
}

func (h *FlightHandler) airports(c *gin.Context) {
	airports, err := h.service.Airports(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"airports": airports})
}
