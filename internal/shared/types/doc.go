// Package types provides shared value types for the restriction controller.
//
// Core Types:
//   - RestrictionLevel: ordered background restriction level
//   - StandbyBucket: usage tier owned by the standby subsystem
//   - Reason: packed main/sub reason for a level transition
//
// Identity Helpers:
//   - UserID, AppID, UID: uid <-> (user, app id) arithmetic
//
// Example Usage:
//
//	level := types.MaxLevel(types.LevelAdaptiveBucket, proposed)
//	reason := types.NewReason(types.MainForcedByUser, types.SubFlagInteraction)
package types
