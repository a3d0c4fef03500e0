// Package dice implements the notation parser and evaluator for NdS+K /
// NdS-K / bare-integer dice notation, plus the shared-defense-total
// multi-die attack resolution.
package dice

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
)

// notationRe matches "[N]dS[+-K]" — N and K optional, S required.
var notationRe = regexp.MustCompile(`^\s*(\d+)?[dD](\d+)\s*([+\-]\s*\d+)?\s*$`)

// bareIntRe matches a bare signed integer, evaluated as a modifier with no
// dice rolled.
var bareIntRe = regexp.MustCompile(`^\s*(-?\d+)\s*$`)

// allowedSides is the closed set of die sizes the engine accepts.
var allowedSides = map[int]bool{4: true, 6: true, 8: true, 10: true, 12: true}

// Result is the outcome of evaluating a single notation string.
type Result struct {
	Formula  string
	Rolls    []int
	Modifier int
	Total    int
}

// Engine evaluates dice notation using an injectable random source, so
// callers (tests, combat-log replay) can seed deterministic rolls.
type Engine struct {
	rng *rand.Rand
}

// New returns an Engine seeded from two uint64 seeds (rand.NewPCG). Pass the
// same seeds to reproduce a sequence of rolls exactly.
func New(seed1, seed2 uint64) *Engine {
	return &Engine{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// NewFromSource wraps an already-constructed *rand.Rand, for callers that
// want a shared or process-wide source.
func NewFromSource(r *rand.Rand) *Engine {
	return &Engine{rng: r}
}

// ParseNotation parses "[N]dS[+-K]" or a bare integer. For the bare-integer
// form, n=0, sides=0, and mod is the integer itself.
func ParseNotation(notation string) (n, sides, mod int, err error) {
	if m := notationRe.FindStringSubmatch(notation); m != nil {
		n = 1
		if m[1] != "" {
			n, err = strconv.Atoi(m[1])
			if err != nil {
				return 0, 0, 0, fmt.Errorf("parsing die count: %w", err)
			}
		}
		sides, err = strconv.Atoi(m[2])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("parsing die size: %w", err)
		}
		if !allowedSides[sides] {
			return 0, 0, 0, fmt.Errorf("die size d%d not allowed (want one of 4,6,8,10,12)", sides)
		}
		if m[3] != "" {
			modStr := strings.ReplaceAll(m[3], " ", "")
			mod, err = strconv.Atoi(modStr)
			if err != nil {
				return 0, 0, 0, fmt.Errorf("parsing modifier: %w", err)
			}
		}
		if n < 1 {
			return 0, 0, 0, fmt.Errorf("die count must be >= 1, got %d", n)
		}
		return n, sides, mod, nil
	}

	if m := bareIntRe.FindStringSubmatch(notation); m != nil {
		mod, err = strconv.Atoi(m[1])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("parsing bare integer: %w", err)
		}
		return 0, 0, mod, nil
	}

	return 0, 0, 0, fmt.Errorf("invalid dice notation %q", notation)
}

// Evaluate parses and rolls notation, returning the per-die rolls and total.
func (e *Engine) Evaluate(notation string) (Result, error) {
	n, sides, mod, err := ParseNotation(notation)
	if err != nil {
		return Result{}, err
	}

	rolls := make([]int, n)
	total := mod
	for i := 0; i < n; i++ {
		rolls[i] = e.rollOne(sides)
		total += rolls[i]
	}

	return Result{
		Formula:  notation,
		Rolls:    rolls,
		Modifier: mod,
		Total:    total,
	}, nil
}

// rollOne returns a uniform roll on [1, sides]. sides == 0 happens only for
// the bare-integer form, which never calls rollOne (n == 0).
func (e *Engine) rollOne(sides int) int {
	return e.rng.IntN(sides) + 1
}

// Outcome labels a multi-die attack's overall result.
type Outcome string

const (
	OutcomeMiss       Outcome = "miss"
	OutcomePartialHit Outcome = "partial_hit"
	OutcomeFullHit    Outcome = "full_hit"
)

// DieResult is one attacker die's contribution to a multi-die attack.
type DieResult struct {
	AttackRoll int
	Margin     int
	Damage     int
}

// AttackResult is the full shared-defense-total resolution: one defense
// roll shared across every attacker die.
type AttackResult struct {
	DefenseTotal int
	Dice         []DieResult
	TotalDamage  int
	Outcome      Outcome
}

// ResolveMultiDieAttack parses attack_style into (N,S), rolls one shared
// defense total, then rolls each of the N attacker dice against it.
func (e *Engine) ResolveMultiDieAttack(
	attackStyle string,
	attackerStatValue int,
	edge int,
	defenseDie string,
	defenderStatValue int,
	defenderEdge int,
	bapTriggered bool,
	attackerBAP int,
) (AttackResult, error) {
	n, sides, _, err := ParseNotation(attackStyle)
	if err != nil {
		return AttackResult{}, fmt.Errorf("parsing attack style: %w", err)
	}
	if n == 0 {
		return AttackResult{}, fmt.Errorf("attack style %q must roll dice, got bare integer", attackStyle)
	}

	_, defSides, defMod, err := ParseNotation(defenseDie)
	if err != nil {
		return AttackResult{}, fmt.Errorf("parsing defense die: %w", err)
	}

	defRoll := e.rollOne(defSides)
	defTotal := defRoll + defMod + defenderStatValue + defenderEdge

	dice := make([]DieResult, n)
	total := 0
	anyHit, anyMiss := false, false

	bapBonus := 0
	if bapTriggered {
		bapBonus = attackerBAP
	}

	for i := 0; i < n; i++ {
		atkRoll := e.rollOne(sides) + attackerStatValue + edge + bapBonus
		margin := atkRoll - defTotal
		if margin < 0 {
			margin = 0
		}
		dice[i] = DieResult{AttackRoll: atkRoll, Margin: margin, Damage: margin}
		total += margin
		if margin > 0 {
			anyHit = true
		} else {
			anyMiss = true
		}
	}

	outcome := OutcomeMiss
	switch {
	case anyHit && anyMiss:
		outcome = OutcomePartialHit
	case anyHit && !anyMiss:
		outcome = OutcomeFullHit
	}

	return AttackResult{
		DefenseTotal: defTotal,
		Dice:         dice,
		TotalDamage:  total,
		Outcome:      outcome,
	}, nil
}
