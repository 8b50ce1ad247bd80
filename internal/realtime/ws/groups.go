package ws

import (
	"strings"

	"github.com/radieske/sports-odds-core/pkg/contracts/events"
)

const (
	GroupLive   = "live"
	matchPrefix = "match:"
	userPrefix  = "user:"
)

func MatchGroup(id string) string { return matchPrefix + id }
func UserGroup(id string) string  { return userPrefix + id }

// ValidGroup aceita "live", "match:{id}" e "user:{id}"
func ValidGroup(g string) bool {
	switch {
	case g == GroupLive:
		return true
	case strings.HasPrefix(g, matchPrefix):
		return len(g) > len(matchPrefix)
	case strings.HasPrefix(g, userPrefix):
		return len(g) > len(userPrefix)
	}
	return false
}

// Groups decide para quais grupos um envelope vai.
// Odds e ciclo de vida vão para a partida e para "live"; liquidações só para o usuário.
func Groups(env events.Envelope) []string {
	ev, err := env.Decode()
	if err != nil {
		return nil
	}
	switch e := ev.(type) {
	case *events.OddsUpdated:
		if e.MatchID == "" {
			return []string{GroupLive}
		}
		return []string{MatchGroup(e.MatchID), GroupLive}
	case *events.MatchLifecycleChanged:
		return []string{MatchGroup(e.MatchID), GroupLive}
	case *events.WagerSettled:
		if e.UserID == "" {
			return nil
		}
		return []string{UserGroup(e.UserID)}
	}
	return nil
}
