// internal/service/fulfillment/application/metrics.go
package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_stock_reservation_attempts_total",
		Help: "Stock reservation attempts by outcome.",
	}, []string{"outcome"})

	reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_payment_reconciliations_total",
		Help: "Payment reconciliations by provider and outcome.",
	}, []string{"provider", "outcome"})

	linksExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atlas_payment_links_expired_total",
		Help: "Payment links expired by the sweep job.",
	})

	reservationsForceReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atlas_stock_reservations_force_released_total",
		Help: "Reservations force-released after exceeding their TTL.",
	})

	couponRedemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_coupon_redemptions_total",
		Help: "Coupon redemption attempts by outcome.",
	}, []string{"outcome"})
)
