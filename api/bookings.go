package api

import (
	"net/http"

	"github.com/Domenick1991/flightsim/internal/service/booking"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type travelerRequest struct {
	FullName         string `json:"full_name" binding:"required"`
	Age              int    `json:"age"`
	Gender           string `json:"gender"`
	SeatNumber       int    `json:"seat_number"`
	ReturnSeatNumber int    `json:"return_seat_number"`
}

type createBookingRequest struct {
	PassengerID      int64             `json:"passenger_id" binding:"required"`
	FlightID         int64             `json:"flight_id" binding:"required"`
	ReturnFlightID   *int64            `json:"return_flight_id"`
	SeatNumber       int               `json:"seat_number"`
	ReturnSeatNumber int               `json:"return_seat_number"`
	Travelers        []travelerRequest `json:"travelers" binding:"dive"`
}

type listBookingsQuery struct {
	PassengerID *int64 `form:"passenger_id"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("/bookings", h.create)
	router.GET("/bookings", h.list)
	router.GET("/bookings/:reference", h.get)
	router.POST("/bookings/:reference/pay", h.pay)
	router.POST("/bookings/:reference/cancel", h.cancel)
}

func (req createBookingRequest) input() booking.CreateBookingInput {
	in := booking.CreateBookingInput{
		PassengerID:      req.PassengerID,
		FlightID:         req.FlightID,
		ReturnFlightID:   req.ReturnFlightID,
		SeatNumber:       req.SeatNumber,
		ReturnSeatNumber: req.ReturnSeatNumber,
	}
	for _, t := range req.Travelers {
		in.Travelers = append(in.Travelers, booking.TravelerInput{
			FullName:         t.FullName,
			Age:              t.Age,
			Gender:           t.Gender,
			SeatNumber:       t.SeatNumber,
			ReturnSeatNumber: t.ReturnSeatNumber,
		})
	}
	return in
}

func (h *BookingHandler) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	b, err := h.service.CreateBooking(c.Request.Context(), req.input())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newBookingResponse(b))
}

func (h *BookingHandler) list(c *gin.Context) {
	var q listBookingsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err.Error())
		return
	}
	bookings, err := h.service.ListBookings(c.Request.Context(), q.PassengerID)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]bookingResponse, len(bookings))
	for i := range bookings {
		out[i] = newBookingResponse(&bookings[i])
	}
	c.JSON(http.StatusOK, out)
}

func (h *BookingHandler) get(c *gin.Context) {
	b, err := h.service.GetBooking(c.Request.Context(), c.Param("reference"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBookingResponse(b))
}

func (h *BookingHandler) pay(c *gin.Context) {
	res, err := h.service.PayBooking(c.Request.Context(), c.Param("reference"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, paymentResponse{
		Booking: newBookingResponse(res.Booking),
		Success: res.Success,
		Message: res.Message,
	})
}

func (h *BookingHandler) cancel(c *gin.Context) {
	res, err := h.service.CancelBooking(c.Request.Context(), c.Param("reference"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cancelResponse{
		Booking:          newBookingResponse(res.Booking),
		AlreadyCancelled: res.AlreadyCancelled,
	})
}
