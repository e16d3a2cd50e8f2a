package service

import (
	"fmt"

	"tablekv/internal/logger"
	"tablekv/internal/types"
)

func notFound(table, key string) *types.CommandResponse {
	return types.ErrorResponse(types.StatusNotFound, fmt.Sprintf("Not found: table:%s, key:%s", table, key))
}

func internalError(err error) *types.CommandResponse {
	return types.ErrorResponse(types.StatusInternalError, err.Error())
}

// dispatch routes one command to storage or broker and produces exactly one
// response. Subscribe never reaches here.
func (s *Service) dispatch(cmd types.Command) *types.CommandResponse {
	switch c := cmd.(type) {
	case nil:
		return types.ErrorResponse(types.StatusInvalidInput, "invalid command: empty request")

	case *types.Hget:
		v, ok, err := s.store.Get(c.Table, c.Key)
		if err != nil {
			return internalError(err)
		}
		if !ok {
			return notFound(c.Table, c.Key)
		}
		return types.FromValue(v)

	case *types.Hgetall:
		pairs, err := s.store.GetAll(c.Table)
		if err != nil {
			return internalError(err)
		}
		return types.FromPairs(pairs)

	case *types.Hmget:
		// values stay aligned with the requested keys; a missing key
		// contributes the unset-Value placeholder
		values := make([]types.Value, len(c.Keys))
		for i, key := range c.Keys {
			v, ok, err := s.store.Get(c.Table, key)
			if err != nil {
				return internalError(err)
			}
			if ok {
				values[i] = v
			}
		}
		return types.FromValues(values)

	case *types.Hset:
		prev, ok, err := s.store.Set(c.Table, c.Pair.Key, c.Pair.Value)
		if err != nil {
			return internalError(err)
		}
		if !ok {
			return types.OK()
		}
		return types.FromValue(prev)

	case *types.Hmset:
		values := make([]types.Value, len(c.Pairs))
		for i, pair := range c.Pairs {
			prev, ok, err := s.store.Set(c.Table, pair.Key, pair.Value)
			if err != nil {
				return internalError(err)
			}
			if ok {
				values[i] = prev
			}
		}
		return types.FromValues(values)

	case *types.Hdel:
		prev, ok, err := s.store.Del(c.Table, c.Key)
		if err != nil {
			return internalError(err)
		}
		if !ok {
			return types.OK()
		}
		return types.FromValue(prev)

	case *types.Hmdel:
		values := make([]types.Value, len(c.Keys))
		for i, key := range c.Keys {
			prev, ok, err := s.store.Del(c.Table, key)
			if err != nil {
				return internalError(err)
			}
			if ok {
				values[i] = prev
			}
		}
		return types.FromValues(values)

	case *types.Hexist:
		ok, err := s.store.Contains(c.Table, c.Key)
		if err != nil {
			return internalError(err)
		}
		return types.FromValue(types.BoolValue(ok))

	case *types.Hmexist:
		values := make([]types.Value, len(c.Keys))
		for i, key := range c.Keys {
			ok, err := s.store.Contains(c.Table, key)
			if err != nil {
				return internalError(err)
			}
			values[i] = types.BoolValue(ok)
		}
		return types.FromValues(values)

	case *types.Unsubscribe:
		if err := s.broker.Unsubscribe(c.Topic, c.ID); err != nil {
			return types.ErrorResponse(types.StatusNotFound, err.Error())
		}
		logger.Debug("subscription %d removed from topic %q", c.ID, c.Topic)
		return types.OK()

	case *types.Publish:
		s.broker.Publish(c.Topic, c.Data)
		return types.OK()

	default:
		return types.ErrorResponse(types.StatusInvalidInput, fmt.Sprintf("invalid command: %T", cmd))
	}
}
