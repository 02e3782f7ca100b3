package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/deegree/ows/geometry"
	"github.com/deegree/ows/metrics"
	"github.com/deegree/ows/utils"
)

// areaInvalidator is implemented by caches able to drop the entries
// of an area.
type areaInvalidator interface {
	InvalidateArea(env geometry.Envelope) (int, error)
}

var worldArea = geometry.Envelope{MinX: -180, MinY: -90, MaxX: 180, MaxY: 90}

// invalidateMaps drops the cached maps overlapping the changed lon/lat
// areas and returns how many were dropped.
func invalidateMaps(s *service, changed []geometry.Envelope) int {
	inv, ok := s.cache.(areaInvalidator)
	if !ok {
		return 0
	}
	total := 0
	for _, env := range changed {
		n, err := inv.InvalidateArea(env)
		if err != nil {
			Error.Printf("invalidating cached maps in %v: %v", env, err)
		}
		total += n
	}
	return total
}

func serveWFS(ctx context.Context, params utils.WFSParams, s *service, r *http.Request, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	if params.Request == nil {
		writeException(w, "", utils.NewOWSException(utils.MissingParameterValue, "REQUEST", "REQUEST parameter is missing"), metricsCollector)
		return
	}
	metricsCollector.Info.Request.Operation = *params.Request
	if s.store == nil {
		writeException(w, "", utils.NewOWSException(utils.OperationNotSupported, "", "namespace %s has no data store", s.conf.ServiceConfig.NameSpace), metricsCollector)
		return
	}

	switch *params.Request {
	case "GetFeature":
		serveGetFeature(ctx, params, s, w, metricsCollector)
	case "Transaction":
		serveTransaction(ctx, s, r, w, metricsCollector)
	}
}

func serveGetFeature(ctx context.Context, params utils.WFSParams, s *service, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	if len(params.TypeNames) == 0 {
		writeException(w, "", utils.NewOWSException(utils.MissingParameterValue, "TYPENAME", "TYPENAME parameter is missing"), metricsCollector)
		return
	}
	metricsCollector.Info.Request.Layers = params.TypeNames

	maxFeatures := 0
	if params.MaxFeatures != nil {
		maxFeatures = *params.MaxFeatures
	}

	var features []interface{}
	for _, name := range params.TypeNames {
		ft, ok := s.store.FeatureType(name)
		if !ok {
			writeException(w, "", utils.NewOWSException(utils.InvalidParameterValue, "TYPENAME", "feature type %s is not defined", name), metricsCollector)
			return
		}

		env := ft.Envelope()
		if len(params.BBox) == 4 {
			env = requestEnvelope(params.BBox)
		}
		if env.IsEmpty() {
			writeException(w, "", utils.NewOWSException(utils.MissingParameterValue, "BBOX", "feature type %s has no extent, BBOX is required", name), metricsCollector)
			return
		}
		metricsCollector.Info.Request.BBox = metricsCollector.Info.Request.BBox.Merge(env)
		metricsCollector.Info.Request.CRS = fmt.Sprintf("EPSG:%d", ft.SRID)

		limit := maxFeatures
		if limit > 0 {
			limit -= len(features)
			if limit <= 0 {
				break
			}
		}
		feats, err := storeFeatures(ctx, s, name, "", env, limit, params.PropertyNames, metricsCollector)
		if err != nil {
			writeException(w, "", err, metricsCollector)
			return
		}
		features = append(features, feats...)
	}

	if err := writeFeatures(w, features); err != nil {
		writeException(w, "", err, metricsCollector)
	}
}

func serveTransaction(ctx context.Context, s *service, r *http.Request, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	if r.Method != "POST" {
		metricsCollector.Info.HTTPStatus = 405
		http.Error(w, "Transaction requests must be POSTed.", 405)
		return
	}

	user, ok := utils.CheckBasicAuth(r, s.conf.Users)
	if !ok {
		metricsCollector.Info.HTTPStatus = 401
		w.Header().Set("WWW-Authenticate", `Basic realm="ows"`)
		http.Error(w, "Unauthorized.", 401)
		return
	}
	metricsCollector.Info.User = user

	treq, err := utils.ParseTransaction(r.Body)
	if err != nil {
		writeException(w, "", err, metricsCollector)
		return
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		writeException(w, "", err, metricsCollector)
		return
	}

	resp, changed, err := applyTransaction(ctx, s, tx, treq)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			Error.Printf("rolling back transaction: %v", rbErr)
		}
		writeException(w, "", err, metricsCollector)
		return
	}
	if err := tx.Commit(); err != nil {
		writeException(w, "", err, metricsCollector)
		return
	}
	metricsCollector.Info.Store.NumRows = len(resp.InsertedIDs) + int(resp.TotalUpdated+resp.TotalDeleted)

	if n := invalidateMaps(s, changed); n > 0 && *verbose {
		Info.Printf("transaction dropped %d cached maps", n)
	}

	out, err := json.Marshal(resp)
	if err != nil {
		writeException(w, "", err, metricsCollector)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(out)
}

// transaction is the part of datastore.Transaction a request uses.
type transaction interface {
	Insert(ctx context.Context, featureType string, props map[string]interface{}, geom geometry.Geometry) (string, error)
	Update(ctx context.Context, featureType, id string, props map[string]interface{}, geom geometry.Geometry) (int64, error)
	Delete(ctx context.Context, featureType, id string) (int64, error)
}

// applyTransaction runs the inserts, updates and deletes of treq in
// this order. It returns the lon/lat areas changed: the envelopes of
// inserted geometries, and the whole world for updates and deletes
// since the previous geometry of a feature is not known.
func applyTransaction(ctx context.Context, s *service, tx transaction, treq *utils.TransactionRequest) (*utils.TransactionResponse, []geometry.Envelope, error) {
	resp := &utils.TransactionResponse{InsertedIDs: []string{}}
	var changed []geometry.Envelope

	decode := func(op utils.TransactionOp) (*geometry.Feature, error) {
		ft, ok := s.store.FeatureType(op.TypeName)
		if !ok {
			return nil, utils.NewOWSException(utils.InvalidParameterValue, "type_name", "feature type %s is not defined", op.TypeName)
		}
		feat, err := geometry.DecodeFeature(op.Feature, ft.SRID)
		if err != nil {
			return nil, utils.NewOWSException(utils.InvalidParameterValue, "feature", "%v", err)
		}
		if feat.Geometry != nil {
			env := feat.Geometry.Bounds()
			srs := fmt.Sprintf("EPSG:%d", ft.SRID)
			if !utils.SameCRS(srs, "EPSG:4326") {
				if env, err = utils.TransformEnvelope(env, srs, "EPSG:4326"); err != nil {
					env = worldArea
				}
			}
			changed = append(changed, env)
		}
		return feat, nil
	}

	for _, op := range treq.Insert {
		feat, err := decode(op)
		if err != nil {
			return nil, nil, err
		}
		id, err := tx.Insert(ctx, op.TypeName, feat.Properties, feat.Geometry)
		if err != nil {
			return nil, nil, err
		}
		resp.InsertedIDs = append(resp.InsertedIDs, id)
	}

	for _, op := range treq.Update {
		feat, err := decode(op)
		if err != nil {
			return nil, nil, err
		}
		n, err := tx.Update(ctx, op.TypeName, op.ID, feat.Properties, feat.Geometry)
		if err != nil {
			return nil, nil, err
		}
		resp.TotalUpdated += n
		if n > 0 {
			changed = append(changed, worldArea)
		}
	}

	for _, op := range treq.Delete {
		n, err := tx.Delete(ctx, op.TypeName, op.ID)
		if err != nil {
			return nil, nil, err
		}
		resp.TotalDeleted += n
		if n > 0 {
			changed = append(changed, worldArea)
		}
	}
	return resp, changed, nil
}
