package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	instructionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_instructions_total",
			Help: "Total number of bridge instructions executed, by instruction and result",
		}, []string{"instruction", "result"})
	tokensLocked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_tokens_locked_total",
			Help: "Total amount of tokens moved into custody, by mint",
		}, []string{"mint"})
	tokensUnlocked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custody_tokens_unlocked_total",
			Help: "Total amount of tokens released from custody, by mint",
		}, []string{"mint"})
	undercollateralizedUnlocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custody_vault_undercollateralized_total",
			Help: "Total number of unlocks rejected because the vault could not cover them",
		})
	auditMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custody_audit_mismatches_total",
			Help: "Total number of audits where the vault balance did not match locked minus unlocked",
		})
	auditErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custody_audit_errors_total",
			Help: "Total number of audits that failed to run",
		})
	duplicateTransactions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custody_duplicate_transactions_total",
			Help: "Total number of signed transactions rejected as replays",
		})
)
