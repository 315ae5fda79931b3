package service

import (
	"github.com/tutorconnect/tutorconnect-api/internal/dto"
	"github.com/tutorconnect/tutorconnect-api/internal/models"
)

// Badge tiers by completed sessions.
const (
	TierBronze = "bronze"
	TierSilver = "silver"
	TierGold   = "gold"
)

// BadgeTier maps a session count to its tier, or "" below the first tier.
func BadgeTier(sessions int) string {
	switch {
	case sessions >= 50:
		return TierGold
	case sessions >= 10:
		return TierSilver
	case sessions >= 1:
		return TierBronze
	default:
		return ""
	}
}

// Badges derives the teacher and student badges of a user.
func Badges(stats models.UserStats) []dto.Badge {
	badges := make([]dto.Badge, 0, 2)
	if tier := BadgeTier(stats.TeacherSessions); tier != "" {
		badges = append(badges, dto.Badge{Kind: "teacher", Tier: tier})
	}
	if tier := BadgeTier(stats.StudentSessions); tier != "" {
		badges = append(badges, dto.Badge{Kind: "student", Tier: tier})
	}
	return badges
}
