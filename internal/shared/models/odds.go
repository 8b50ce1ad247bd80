package models

import "time"

// Outcome é um preço de um lado do mercado; Point só existe em handicap/totais
type Outcome struct {
	Name  string   `json:"name"`
	Price float64  `json:"price"`
	Point *float64 `json:"point,omitempty"`
}

// Market guarda os outcomes de uma chave canônica de mercado
type Market struct {
	Key        string    `json:"key"`
	LastUpdate time.Time `json:"last_update"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Bookmaker é uma fonte de preços dentro de um evento
type Bookmaker struct {
	Key        string    `json:"key"`
	Title      string    `json:"title"`
	LastUpdate time.Time `json:"last_update"`
	Markets    []Market  `json:"markets"`
}

// Market retorna o mercado com a chave informada, se existir
func (b Bookmaker) Market(key string) (Market, bool) {
	for _, m := range b.Markets {
		if m.Key == key {
			return m, true
		}
	}
	return Market{}, false
}

// OddsRecord é o documento completo de odds de um evento do fornecedor.
// O mesmo formato é usado no fio (resposta do feed) e na persistência.
type OddsRecord struct {
	EventID       string      `json:"id"`
	SportKey      string      `json:"sport_key"`
	SportTitle    string      `json:"sport_title,omitempty"`
	CommenceTime  time.Time   `json:"commence_time"`
	HomeTeam      string      `json:"home_team"`
	AwayTeam      string      `json:"away_team"`
	Bookmakers    []Bookmaker `json:"bookmakers"`
	LastFetchedAt time.Time   `json:"last_fetched_at,omitempty"`
}

// Bookmaker retorna o bookmaker com a chave informada, se existir
func (r OddsRecord) Bookmaker(key string) (Bookmaker, bool) {
	for _, b := range r.Bookmakers {
		if b.Key == key {
			return b, true
		}
	}
	return Bookmaker{}, false
}
