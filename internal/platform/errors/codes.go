// Package errors provides structured error handling for arcjournal.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Store errors
	CodeNotFound         Code = "NOT_FOUND"
	CodeAlreadyCommitted Code = "ALREADY_COMMITTED"
	CodeCrossInstance    Code = "CROSS_INSTANCE_MISMATCH"

	// Transaction errors
	CodeTransactionIDEmpty    Code = "TRANSACTION_ID_EMPTY"
	CodeTransactionKindEmpty  Code = "TRANSACTION_KIND_EMPTY"
	CodeTransactionOwnerEmpty Code = "TRANSACTION_OWNER_EMPTY"
	CodeDuplicateTransaction  Code = "TRANSACTION_DUPLICATE_ID"

	// Instance errors
	CodeInstanceOwnerEmpty Code = "INSTANCE_OWNER_EMPTY"
	CodeInstanceArcEmpty   Code = "INSTANCE_ARC_EMPTY"

	// Content errors
	CodeContentRefUnknown Code = "CONTENT_REF_UNKNOWN"
	CodeContentInvalid    Code = "CONTENT_INVALID"

	// Replay errors
	CodeReplayOutOfOrder    Code = "REPLAY_OUT_OF_ORDER"
	CodeReplayUncommitted   Code = "REPLAY_UNCOMMITTED"
	CodeReplayUnknownKind   Code = "REPLAY_UNKNOWN_KIND"
	CodeReplayPayloadDecode Code = "REPLAY_PAYLOAD_DECODE"

	// Command validation errors
	CodeValidationBranchChosen    Code = "VALIDATION_BRANCH_ALREADY_CHOSEN"
	CodeValidationQuestAccepted   Code = "VALIDATION_QUEST_ALREADY_ACCEPTED"
	CodeValidationEntityNotAlive  Code = "VALIDATION_ENTITY_NOT_ALIVE"
	CodeValidationInsufficient    Code = "VALIDATION_INSUFFICIENT_FUNDS"
	CodeValidationInteractionsMax Code = "VALIDATION_MAX_INTERACTIONS"
	CodeValidationLootConsumed    Code = "VALIDATION_LOOT_ALREADY_CONSUMED"
	CodeValidationQuestNotOpen    Code = "VALIDATION_QUEST_NOT_ACCEPTED"
	CodeValidationArgument        Code = "VALIDATION_ARGUMENT"
)

// GRPCCode maps a domain code to the closest gRPC status code.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeNotFound, CodeContentRefUnknown:
		return codes.NotFound
	case CodeAlreadyCommitted, CodeDuplicateTransaction:
		return codes.FailedPrecondition
	case CodeCrossInstance:
		return codes.InvalidArgument
	case CodeTransactionIDEmpty, CodeTransactionKindEmpty, CodeTransactionOwnerEmpty,
		CodeInstanceOwnerEmpty, CodeInstanceArcEmpty:
		return codes.InvalidArgument
	case CodeContentInvalid, CodeReplayOutOfOrder, CodeReplayUncommitted,
		CodeReplayUnknownKind, CodeReplayPayloadDecode:
		return codes.Internal
	case CodeValidationBranchChosen, CodeValidationQuestAccepted, CodeValidationEntityNotAlive,
		CodeValidationInsufficient, CodeValidationInteractionsMax, CodeValidationLootConsumed,
		CodeValidationQuestNotOpen:
		return codes.FailedPrecondition
	case CodeValidationArgument:
		return codes.InvalidArgument
	default:
		return codes.Unknown
	}
}
