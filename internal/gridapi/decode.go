package gridapi

import (
	"math"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jgoulah/gridview/pkg/models"
)

var validate = validator.New()

// overloadFlag accepts the backend's "True"/"False" strings as well as JSON booleans.
// Anything else decodes as false.
type overloadFlag bool

func (f *overloadFlag) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = overloadFlag(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = overloadFlag(models.ParseOverloaded(s))
		return nil
	}
	*f = false
	return nil
}

type wirePoint struct {
	Lat           *float64       `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon           *float64       `json:"lon" validate:"required,gte=-180,lte=180"`
	Address       string         `json:"address"`
	Time          float64        `json:"time"`
	PredictedLoad float64        `json:"predictedLoad"`
	IsOverloaded  overloadFlag   `json:"isOverloaded"`
	BaseLoad      float64        `json:"baseLoad"`
	MaxLoad       float64        `json:"maxLoad"`
	Cadaster      string         `json:"cadaster"`
	Extra         map[string]any `json:",unknown"`
}

type wireCharger struct {
	Lat             *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon             *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
	CarModel        string   `json:"carModel"`
	ChargeNeed      float64  `json:"chargeNeed"`
	OptimizedCharge float64  `json:"optimizedCharge"`
	Address         string   `json:"address"`
	Cadaster        string   `json:"cadaster"`
	DecreasePercent float64  `json:"decreasePercent"`
}

// decodeRecords splits a JSON array into its elements and decodes each into T.
// Elements that fail to decode or validate are logged and skipped.
func decodeRecords[T any](data []byte, kind string, logger *zap.Logger) ([]T, error) {
	var raw []jsontext.Value
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	records := make([]T, 0, len(raw))
	for i, elem := range raw {
		var rec T
		if err := json.Unmarshal(elem, &rec); err != nil {
			logger.Warn("skipping malformed "+kind, zap.Int("index", i), zap.Error(err))
			continue
		}
		if err := validate.Struct(rec); err != nil {
			logger.Warn("skipping invalid "+kind, zap.Int("index", i), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func decodePoints(data []byte, logger *zap.Logger) ([]models.GridPoint, error) {
	wire, err := decodeRecords[wirePoint](data, "grid point", logger)
	if err != nil {
		return nil, err
	}

	points := make([]models.GridPoint, 0, len(wire))
	for _, w := range wire {
		points = append(points, models.GridPoint{
			Position:      models.LatLon{Lat: *w.Lat, Lon: *w.Lon},
			Hour:          int(math.Round(w.Time)),
			PredictedLoad: w.PredictedLoad,
			BaseLoad:      w.BaseLoad,
			MaxLoad:       w.MaxLoad,
			IsOverloaded:  bool(w.IsOverloaded),
			Address:       w.Address,
			Cadaster:      w.Cadaster,
			Extra:         w.Extra,
		})
	}
	return points, nil
}

func decodeChargers(data []byte, logger *zap.Logger) ([]models.ChargerRecord, error) {
	wire, err := decodeRecords[wireCharger](data, "charger", logger)
	if err != nil {
		return nil, err
	}

	records := make([]models.ChargerRecord, 0, len(wire))
	for _, w := range wire {
		records = append(records, models.ChargerRecord{
			Position:        models.LatLon{Lat: *w.Lat, Lon: *w.Lon},
			CarModel:        w.CarModel,
			ChargeNeed:      w.ChargeNeed,
			OptimizedCharge: w.OptimizedCharge,
			Address:         w.Address,
			Cadaster:        w.Cadaster,
			DecreasePercent: w.DecreasePercent,
		})
	}
	return records, nil
}
