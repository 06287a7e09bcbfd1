package tourvisor

import (
	"bytes"
	"encoding/json"
)

// flexString decodes a JSON string or bare number into a string. The
// Tourvisor JSON gateway is generated from XML and emits numeric fields
// inconsistently as either.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	d := bytes.TrimSpace(data)
	if len(d) == 0 || string(d) == "null" {
		*s = ""
		return nil
	}
	if d[0] == '"' {
		var v string
		if err := json.Unmarshal(d, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(d)
	return nil
}

func (s flexString) String() string { return string(s) }

// listOf tolerates a JSON value that is a single object where a list is
// expected. The gateway collapses one-element XML collections into a bare
// object.
type listOf[T any] []T

func (l *listOf[T]) UnmarshalJSON(data []byte) error {
	d := bytes.TrimSpace(data)
	if len(d) == 0 || string(d) == "null" {
		*l = nil
		return nil
	}
	if d[0] == '[' {
		var many []T
		if err := json.Unmarshal(d, &many); err != nil {
			return err
		}
		*l = many
		return nil
	}
	var single T
	if err := json.Unmarshal(d, &single); err != nil {
		return err
	}
	*l = listOf[T]{single}
	return nil
}

// Hotel is one parent record from the results feed. Its own price field is
// an aggregate and is ignored by ranking; only the nested offers count.
type Hotel struct {
	Name    flexString `json:"hotelname"`
	Stars   flexString `json:"hotelstars"`
	Country flexString `json:"countryname"`
	Region  flexString `json:"regionname"`
	Rating  flexString `json:"rating"`
	Price   flexString `json:"price"`
	Tours   tourList   `json:"tours"`
}

type tourList struct {
	Tour listOf[TourOffer] `json:"tour"`
}

// TourOffer is one priced offer nested under a hotel record.
type TourOffer struct {
	Price    flexString `json:"price"`
	Currency flexString `json:"currency"`
	FlyDate  flexString `json:"flydate"`
	Nights   flexString `json:"nights"`
	Operator flexString `json:"operatorname"`
	Meal     flexString `json:"mealrussian"`
	Room     flexString `json:"room"`
	TourName flexString `json:"tourname"`
	TourLink flexString `json:"tourlink"`
}
