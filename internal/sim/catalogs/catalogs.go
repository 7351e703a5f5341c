// Package catalogs loads the static reference tables the engine depends on:
// trade goods, buildings, technologies, province definitions with adjacency,
// and trade node topology. Tables are immutable after Load and shared by
// reference across every snapshot. The combined manifest hash fingerprints
// the data a peer was built against; peers with different manifests must not
// simulate together.
package catalogs

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"lukechampine.com/blake3"

	"regent/internal/sim/fixed"
	"regent/internal/sim/state"
)

type Catalogs struct {
	TradeGoods   TradeGoodCatalog
	Buildings    BuildingCatalog
	Technologies TechCatalog
	Provinces    ProvinceCatalog
	TradeNodes   TradeNodeCatalog

	// ManifestHash is the blake3 fingerprint over every file's content
	// digest, combined in sorted filename order so filesystem iteration
	// order never matters.
	ManifestHash string
}

type TradeGoodCatalog struct {
	ByID   map[string]TradeGoodDef
	Digest string
}

type TradeGoodDef struct {
	ID        string      `json:"id"`
	BasePrice fixed.Value `json:"base_price"`
}

type BuildingCatalog struct {
	ByID   map[string]BuildingDef
	Digest string
}

type BuildingDef struct {
	ID            string      `json:"id"`
	Cost          fixed.Value `json:"cost"`
	TaxBonus      fixed.Value `json:"tax_bonus,omitempty"`
	ProdBonus     fixed.Value `json:"production_bonus,omitempty"`
	ManpowerBonus fixed.Value `json:"manpower_bonus,omitempty"`
	FortLevel     uint8       `json:"fort_level,omitempty"`
}

type TechCatalog struct {
	// Levels[category][level-1] is the definition for that level.
	Levels map[string][]TechLevelDef
	Digest string
}

type TechLevelDef struct {
	Level int         `json:"level"`
	Cost  fixed.Value `json:"cost"`
}

type ProvinceCatalog struct {
	ByID   map[state.ProvinceID]ProvinceDef
	Digest string
}

type ProvinceDef struct {
	ID        state.ProvinceID   `json:"id"`
	Name      string             `json:"name"`
	IsSea     bool               `json:"is_sea,omitempty"`
	Adjacent  []state.ProvinceID `json:"adjacent"`
	TradeNode string             `json:"trade_node,omitempty"`
}

type TradeNodeCatalog struct {
	// Order is the topological evaluation order: upstream nodes first.
	Order  []string
	ByID   map[string]TradeNodeDef
	Digest string
}

type TradeNodeDef struct {
	ID         string   `json:"id"`
	Downstream []string `json:"downstream,omitempty"` // empty for end nodes
}

// Load reads every table from configDir and computes the manifest hash.
func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadTradeGoods(filepath.Join(configDir, "trade_goods.json"), &c.TradeGoods); err != nil {
		return nil, err
	}
	if err := loadBuildings(filepath.Join(configDir, "buildings.json"), &c.Buildings); err != nil {
		return nil, err
	}
	if err := loadTechnologies(filepath.Join(configDir, "technologies.json"), &c.Technologies); err != nil {
		return nil, err
	}
	if err := loadProvinces(filepath.Join(configDir, "provinces.json"), &c.Provinces); err != nil {
		return nil, err
	}
	if err := loadTradeNodes(filepath.Join(configDir, "trade_nodes.json"), &c.TradeNodes); err != nil {
		return nil, err
	}

	c.ManifestHash = combineManifest(map[string]string{
		"trade_goods.json":  c.TradeGoods.Digest,
		"buildings.json":    c.Buildings.Digest,
		"technologies.json": c.Technologies.Digest,
		"provinces.json":    c.Provinces.Digest,
		"trade_nodes.json":  c.TradeNodes.Digest,
	})
	return &c, nil
}

func blake3Hex(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// combineManifest hashes the (name, digest) list in sorted name order.
func combineManifest(digests map[string]string) string {
	names := make([]string, 0, len(digests))
	for n := range digests {
		names = append(names, n)
	}
	sort.Strings(names)
	h := blake3.New(32, nil)
	for _, n := range names {
		h.Write([]byte(n))
		h.Write([]byte{0})
		h.Write([]byte(digests[n]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func loadTradeGoods(path string, out *TradeGoodCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = blake3Hex(raw)

	var defs []TradeGoodDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("trade_goods.json: %w", err)
	}
	out.ByID = make(map[string]TradeGoodDef, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("trade_goods.json: empty id")
		}
		out.ByID[d.ID] = d
	}
	return nil
}

func loadBuildings(path string, out *BuildingCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = blake3Hex(raw)

	var defs []BuildingDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("buildings.json: %w", err)
	}
	out.ByID = make(map[string]BuildingDef, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("buildings.json: empty id")
		}
		out.ByID[d.ID] = d
	}
	return nil
}

func loadTechnologies(path string, out *TechCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = blake3Hex(raw)

	var defs map[string][]TechLevelDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("technologies.json: %w", err)
	}
	for cat, levels := range defs {
		for i, l := range levels {
			if l.Level != i+1 {
				return fmt.Errorf("technologies.json: %s levels out of order at index %d", cat, i)
			}
		}
	}
	out.Levels = defs
	return nil
}

func loadProvinces(path string, out *ProvinceCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = blake3Hex(raw)

	var defs []ProvinceDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("provinces.json: %w", err)
	}
	out.ByID = make(map[state.ProvinceID]ProvinceDef, len(defs))
	for _, d := range defs {
		if d.ID == 0 {
			return fmt.Errorf("provinces.json: province id 0 is reserved")
		}
		out.ByID[d.ID] = d
	}
	// Adjacency must be symmetric or pathing would depend on direction.
	for id, d := range out.ByID {
		for _, adj := range d.Adjacent {
			o, ok := out.ByID[adj]
			if !ok {
				return fmt.Errorf("provinces.json: %d adjacent to unknown %d", id, adj)
			}
			if !containsProvince(o.Adjacent, id) {
				return fmt.Errorf("provinces.json: adjacency %d->%d not symmetric", id, adj)
			}
		}
	}
	return nil
}

func loadTradeNodes(path string, out *TradeNodeCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = blake3Hex(raw)

	var defs []TradeNodeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("trade_nodes.json: %w", err)
	}
	out.ByID = make(map[string]TradeNodeDef, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("trade_nodes.json: empty id")
		}
		out.ByID[d.ID] = d
	}
	order, err := topoOrder(out.ByID)
	if err != nil {
		return fmt.Errorf("trade_nodes.json: %w", err)
	}
	out.Order = order
	return nil
}

// topoOrder sorts nodes so every node precedes its downstream targets, with
// alphabetical tie-breaking for determinism.
func topoOrder(nodes map[string]TradeNodeDef) ([]string, error) {
	indegree := make(map[string]int, len(nodes))
	for id := range nodes {
		indegree[id] = 0
	}
	for id, n := range nodes {
		for _, d := range n.Downstream {
			if _, ok := nodes[d]; !ok {
				return nil, fmt.Errorf("node %s flows to unknown node %s", id, d)
			}
			indegree[d]++
		}
	}
	var ready []string
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	order := make([]string, 0, len(nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		added := false
		for _, d := range nodes[id].Downstream {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
				added = true
			}
		}
		if added {
			sort.Strings(ready)
		}
	}
	if len(order) != len(nodes) {
		return nil, fmt.Errorf("trade node graph has a cycle")
	}
	return order, nil
}

// Adjacent reports whether a and b share a border.
func (c *ProvinceCatalog) Adjacent(a, b state.ProvinceID) bool {
	d, ok := c.ByID[a]
	if !ok {
		return false
	}
	return containsProvince(d.Adjacent, b)
}

func containsProvince(list []state.ProvinceID, id state.ProvinceID) bool {
	for _, p := range list {
		if p == id {
			return true
		}
	}
	return false
}
