// Package tuning loads runtime configuration. Gameplay rate constants live
// here rather than in code so that hosts and peers agree on them by loading
// the same file; everything that feeds a formula is fixed-point.
package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"regent/internal/sim/fixed"
)

type Tuning struct {
	SimVersion string `yaml:"sim_version"`

	TickMs             int `yaml:"tick_ms"`
	ChecksumEveryTicks int `yaml:"checksum_every_ticks"`
	SaveEveryTicks     int `yaml:"save_every_ticks"`

	Lockstep Lockstep `yaml:"lockstep"`
	Rates    Rates    `yaml:"rates"`
}

type Lockstep struct {
	CommandTimeoutMs  int `yaml:"command_timeout_ms"`
	ChecksumTimeoutMs int `yaml:"checksum_timeout_ms"`
	LagStrikesToDrop  int `yaml:"lag_strikes_to_drop"`
	CommandsPerSec    int `yaml:"commands_per_sec"`
	CommandBurst      int `yaml:"command_burst"`
}

type Rates struct {
	CombatDailyRate         fixed.Value
	SiegeDailyProgress      fixed.Value
	ManpowerRecoveryMonths  int
	ManpowerPerDev          fixed.Value
	ManpowerBase            fixed.Value
	RegimentMaintenance     fixed.Value
	ShipMaintenance         fixed.Value
	ManaPerMonth            fixed.Value
	ManaCap                 fixed.Value
	MovementDaysPerProvince int
	WarAutoPeaceYears       int
	PrestigeYearlyDecay     fixed.Value
	UnrestOccupiedMonthly   fixed.Value
	UnrestMonthlyDecay      fixed.Value
}

// rawRates carries the yaml shape; fixed-point fields are decimal strings so
// the file never contains binary floats.
type rawRates struct {
	CombatDailyRate         string `yaml:"combat_daily_rate"`
	SiegeDailyProgress      string `yaml:"siege_daily_progress"`
	ManpowerRecoveryMonths  int    `yaml:"manpower_recovery_months"`
	ManpowerPerDev          string `yaml:"manpower_per_dev"`
	ManpowerBase            string `yaml:"manpower_base"`
	RegimentMaintenance     string `yaml:"regiment_maintenance"`
	ShipMaintenance         string `yaml:"ship_maintenance"`
	ManaPerMonth            string `yaml:"mana_per_month"`
	ManaCap                 string `yaml:"mana_cap"`
	MovementDaysPerProvince int    `yaml:"movement_days_per_province"`
	WarAutoPeaceYears       int    `yaml:"war_auto_peace_years"`
	PrestigeYearlyDecay     string `yaml:"prestige_yearly_decay"`
	UnrestOccupiedMonthly   string `yaml:"unrest_occupied_monthly"`
	UnrestMonthlyDecay      string `yaml:"unrest_monthly_decay"`
}

func (r *Rates) UnmarshalYAML(unmarshal func(any) error) error {
	var raw rawRates
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parse := func(s string, dst *fixed.Value, name string) error {
		if s == "" {
			return nil
		}
		v, err := fixed.Parse(s)
		if err != nil {
			return fmt.Errorf("rates.%s: %w", name, err)
		}
		*dst = v
		return nil
	}
	r.ManpowerRecoveryMonths = raw.ManpowerRecoveryMonths
	r.MovementDaysPerProvince = raw.MovementDaysPerProvince
	r.WarAutoPeaceYears = raw.WarAutoPeaceYears
	for _, f := range []struct {
		s    string
		dst  *fixed.Value
		name string
	}{
		{raw.CombatDailyRate, &r.CombatDailyRate, "combat_daily_rate"},
		{raw.SiegeDailyProgress, &r.SiegeDailyProgress, "siege_daily_progress"},
		{raw.ManpowerPerDev, &r.ManpowerPerDev, "manpower_per_dev"},
		{raw.ManpowerBase, &r.ManpowerBase, "manpower_base"},
		{raw.RegimentMaintenance, &r.RegimentMaintenance, "regiment_maintenance"},
		{raw.ShipMaintenance, &r.ShipMaintenance, "ship_maintenance"},
		{raw.ManaPerMonth, &r.ManaPerMonth, "mana_per_month"},
		{raw.ManaCap, &r.ManaCap, "mana_cap"},
		{raw.PrestigeYearlyDecay, &r.PrestigeYearlyDecay, "prestige_yearly_decay"},
		{raw.UnrestOccupiedMonthly, &r.UnrestOccupiedMonthly, "unrest_occupied_monthly"},
		{raw.UnrestMonthlyDecay, &r.UnrestMonthlyDecay, "unrest_monthly_decay"},
	} {
		if err := parse(f.s, f.dst, f.name); err != nil {
			return err
		}
	}
	return nil
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if t.TickMs <= 0 {
		t.TickMs = 100
	}
	if t.ChecksumEveryTicks <= 0 {
		t.ChecksumEveryTicks = 1
	}
	return t, nil
}

// Default returns the values shipped in configs/tuning.yaml, for tests and
// for hosts started without a config file.
func Default() Tuning {
	return Tuning{
		SimVersion:         "0.3",
		TickMs:             100,
		ChecksumEveryTicks: 1,
		SaveEveryTicks:     3650,
		Lockstep: Lockstep{
			CommandTimeoutMs:  2000,
			ChecksumTimeoutMs: 5000,
			LagStrikesToDrop:  2,
			CommandsPerSec:    10,
			CommandBurst:      20,
		},
		Rates: Rates{
			CombatDailyRate:         fixed.FromRaw(300),   // 0.03
			SiegeDailyProgress:      fixed.FromRaw(100),   // 0.01
			ManpowerRecoveryMonths:  120,
			ManpowerPerDev:          fixed.FromInt(250),
			ManpowerBase:            fixed.FromInt(10000),
			RegimentMaintenance:     fixed.FromRaw(2500),  // 0.25 ducats
			ShipMaintenance:         fixed.FromRaw(4000),  // 0.4 ducats
			ManaPerMonth:            fixed.FromInt(3),
			ManaCap:                 fixed.FromInt(999),
			MovementDaysPerProvince: 10,
			WarAutoPeaceYears:       10,
			PrestigeYearlyDecay:     fixed.FromRaw(500),  // 5%
			UnrestOccupiedMonthly:   fixed.FromRaw(5000), // 0.5
			UnrestMonthlyDecay:      fixed.FromRaw(2500), // 0.25
		},
	}
}
