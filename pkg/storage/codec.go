package storage

import (
	"time"

	"github.com/yujiajie1988/hive/pkg/credential"
)

const timeLayout = time.RFC3339Nano

func toRecord(c *credential.Object) record {
	r := record{
		ID:              c.ID,
		Kind:            string(c.Kind),
		ProviderID:      c.ProviderID,
		AutoRefresh:     c.AutoRefresh,
		Description:     c.Description,
		Tags:            append([]string(nil), c.Tags...),
		HealthCheckName: c.HealthCheckName,
		UseCount:        c.UseCount,
		CreatedAt:       c.CreatedAt.Format(timeLayout),
		UpdatedAt:       c.UpdatedAt.Format(timeLayout),
		Keys:            make(map[string]keyRec),
		KeyOrder:        c.KeyNames(),
	}
	if !c.LastRefreshedAt.IsZero() {
		r.LastRefreshedAt = c.LastRefreshedAt.Format(timeLayout)
	}
	if !c.LastUsedAt.IsZero() {
		r.LastUsedAt = c.LastUsedAt.Format(timeLayout)
	}
	for _, k := range c.Keys() {
		kr := keyRec{Value: k.Value.Reveal(), Metadata: k.Metadata}
		if k.ExpiresAt != nil {
			kr.ExpiresAt = k.ExpiresAt.Format(timeLayout)
		}
		r.Keys[k.Name] = kr
	}
	return r
}

func fromRecord(r record) *credential.Object {
	obj := credential.NewObject(r.ID, credential.Kind(r.Kind))
	obj.ProviderID = r.ProviderID
	obj.AutoRefresh = r.AutoRefresh
	obj.Description = r.Description
	obj.Tags = append([]string(nil), r.Tags...)
	obj.HealthCheckName = r.HealthCheckName
	obj.UseCount = r.UseCount
	obj.LastUsedAt = parseTimeOrZero(r.LastUsedAt)

	order := r.KeyOrder
	if len(order) == 0 {
		for name := range r.Keys {
			order = append(order, name)
		}
	}
	for _, name := range order {
		kr, ok := r.Keys[name]
		if !ok {
			continue
		}
		k := credential.Key{Name: name, Value: credential.NewSecret(kr.Value), Metadata: kr.Metadata}
		if kr.ExpiresAt != "" {
			if t := parseTimeOrZero(kr.ExpiresAt); !t.IsZero() {
				k.ExpiresAt = &t
			}
		}
		obj.SetKey(k)
	}

	// SetKey bumps UpdatedAt on every call; restore the persisted
	// timestamps now that key reconstruction is done.
	obj.CreatedAt = parseTimeOrZero(r.CreatedAt)
	obj.UpdatedAt = parseTimeOrZero(r.UpdatedAt)
	obj.LastRefreshedAt = parseTimeOrZero(r.LastRefreshedAt)
	return obj
}

func parseTimeOrZero(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
