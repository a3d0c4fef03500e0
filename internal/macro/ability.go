package macro

import (
	"context"
	"fmt"
	"strings"

	"github.com/tbrpg/partyhub/internal/mention"
	"github.com/tbrpg/partyhub/internal/model"
	"github.com/tbrpg/partyhub/internal/proto"
)

// castAbility implements the per-ability macro command path (tier 2 of
// the dispatch table). caster is the sender's own cache
// snapshot; ability is the matched Ability owned by it.
func (d *Dispatcher) castAbility(ctx context.Context, req Request, caster *model.Snapshot, ability *model.Ability, args string) (Result, error) {
	if !ability.CanCast() {
		return Result{}, model.NewDomainError(model.KindBudget, fmt.Sprintf("%s has no uses remaining", ability.DisplayName))
	}

	targets, err := d.resolveAbilityTargets(ctx, req, ability, args)
	if err != nil {
		return Result{}, err
	}

	resolutions := make([]map[string]any, 0, len(targets))
	names := make([]string, 0, len(targets))

	switch ability.Effect {
	case model.EffectDamage:
		for _, t := range targets {
			res, err := d.resolveAbilityDamage(ctx, caster, ability, t)
			if err != nil {
				return Result{}, err
			}
			resolutions = append(resolutions, res)
			names = append(names, t.Mention.Name)
		}
	case model.EffectHeal:
		for _, t := range targets {
			res, err := d.resolveAbilityHeal(ctx, caster, ability, t)
			if err != nil {
				return Result{}, err
			}
			resolutions = append(resolutions, res)
			names = append(names, t.Mention.Name)
		}
	case model.EffectBuff, model.EffectDebuff:
		for _, t := range targets {
			res, err := d.resolveAbilityBuff(caster, ability, t)
			if err != nil {
				return Result{}, err
			}
			resolutions = append(resolutions, res)
			names = append(names, t.Mention.Name)
		}
	default: // model.EffectUtility
		res, err := d.resolveAbilityUtility(caster, ability)
		if err != nil {
			return Result{}, err
		}
		resolutions = append(resolutions, res)
		for _, t := range targets {
			names = append(names, t.Mention.Name)
		}
	}

	newRemaining := ability.UsesRemaining - 1
	if err := d.store.DecrementAbilityUse(ctx, ability.ID, newRemaining); err != nil {
		return Result{}, model.WrapDomainError(model.KindStore, "recording ability use", err)
	}
	ability.Decrement()

	frame := proto.AbilityCastFrame{
		Type: "ability_cast", Caster: req.SenderName, Ability: ability.DisplayName,
		Targets: names, Resolution: map[string]any{"effect": string(ability.Effect), "results": resolutions},
		UsesRemaining: ability.UsesRemaining, PartyID: req.PartyID, Timestamp: req.Now,
	}

	out := Result{Broadcast: frame}
	if d.shouldPersist(kindAbility) {
		out.CombatPersist = combatRow(req, "ability_cast", map[string]any{
			"ability": ability.DisplayName, "targets": names, "effect": string(ability.Effect),
		})
	}
	return out, nil
}

// abilityTarget pairs a resolved mention with its live Snapshot.
type abilityTarget struct {
	Mention  mention.Mention
	Snapshot *model.Snapshot
}

// resolveAbilityTargets validates target count against the ability's AoE
// flag ("validates target count vs AoE flag") and resolves every
// @mention in args.
func (d *Dispatcher) resolveAbilityTargets(ctx context.Context, req Request, ability *model.Ability, args string) ([]abilityTarget, error) {
	if strings.TrimSpace(args) == "" {
		if ability.Effect == model.EffectUtility {
			return nil, nil
		}
		return nil, usageError(fmt.Sprintf("%s @target%s", ability.MacroCommand, aoeSuffix(ability.AoE)))
	}

	res, err := d.mention.Resolve(ctx, args, req.PartyID, req.IsSW)
	if err != nil {
		return nil, model.WrapDomainError(model.KindInternal, "resolving targets", err)
	}
	if len(res.Ambiguous) > 0 {
		return nil, model.NewDomainError(model.KindMention, fmt.Sprintf("Ambiguous target: @%s. Use /who to see available targets.", res.Ambiguous[0].Token))
	}
	if len(res.Unresolved) > 0 {
		return nil, model.NewDomainError(model.KindMention, fmt.Sprintf("Target not found: @%s. Use /who to see available targets.", res.Unresolved[0]))
	}
	if !ability.AoE && len(res.Mentions) != 1 {
		return nil, usageError(fmt.Sprintf("%s @target (single target only)", ability.MacroCommand))
	}

	out := make([]abilityTarget, 0, len(res.Mentions))
	for _, m := range res.Mentions {
		snap, err := d.loadTargetSnapshot(ctx, req.PartyID, m)
		if err != nil {
			return nil, model.WrapDomainError(model.KindInternal, "loading target", err)
		}
		out = append(out, abilityTarget{Mention: m, Snapshot: snap})
	}
	return out, nil
}

func aoeSuffix(aoe bool) string {
	if aoe {
		return " [@t2 @t3 ...]"
	}
	return ""
}

// abilityRollNotation builds "<die>+K" where K = powerValue + edge, the
// shared pattern behind every ability roll.
func abilityRollNotation(die string, powerValue, edge int) string {
	return fmt.Sprintf("%s+%d", die, powerValue+edge)
}

// resolveAbilityDamage implements the single-target/AoE damage contest
// (attacker: ability die + power_source stat + edge; defender:
// defense_die roll + PP + edge; same margin policy as a basic attack).
func (d *Dispatcher) resolveAbilityDamage(ctx context.Context, caster *model.Snapshot, ability *model.Ability, t abilityTarget) (map[string]any, error) {
	atk, err := d.dice.ResolveMultiDieAttack(
		ability.Die, caster.StatValue(ability.PowerSource), caster.Edge,
		t.Snapshot.DefenseDie, t.Snapshot.PP, t.Snapshot.Edge, false, 0,
	)
	if err != nil {
		return nil, model.WrapDomainError(model.KindInternal, "resolving ability damage", err)
	}

	before := captureDPState(t.Snapshot)
	t.Snapshot.ApplyDamage(atk.TotalDamage)
	if err := d.writeThroughDP(ctx, t.Mention, t.Snapshot); err != nil {
		restoreDPState(t.Snapshot, before)
		return nil, model.WrapDomainError(model.KindStore, "persisting ability damage", err)
	}

	return map[string]any{
		"target": t.Mention.Name, "damage": atk.TotalDamage, "outcome": string(atk.Outcome), "new_dp": t.Snapshot.DP,
	}, nil
}

// resolveAbilityHeal implements the single-target/AoE heal effect: roll
// ability die + power_source + edge, add to target DP capped at DP_max.
// Heals auto-succeed — there is no defense roll.
func (d *Dispatcher) resolveAbilityHeal(ctx context.Context, caster *model.Snapshot, ability *model.Ability, t abilityTarget) (map[string]any, error) {
	notation := abilityRollNotation(ability.Die, caster.StatValue(ability.PowerSource), caster.Edge)
	res, err := d.dice.Evaluate(notation)
	if err != nil {
		return nil, model.WrapDomainError(model.KindInternal, "resolving ability heal", err)
	}

	before := captureDPState(t.Snapshot)
	t.Snapshot.Heal(res.Total)
	if err := d.writeThroughDP(ctx, t.Mention, t.Snapshot); err != nil {
		restoreDPState(t.Snapshot, before)
		return nil, model.WrapDomainError(model.KindStore, "persisting ability heal", err)
	}

	return map[string]any{
		"target": t.Mention.Name, "healed": res.Total, "new_dp": t.Snapshot.DP,
	}, nil
}

// resolveAbilityBuff implements buff/debuff resolution: a contested roll
// whose margin becomes the modifier's duration in rounds, clamped to the
// 1..6 round table. Duration tracking stays out of scope — only the
// attempt and outcome are recorded in the broadcast.
func (d *Dispatcher) resolveAbilityBuff(caster *model.Snapshot, ability *model.Ability, t abilityTarget) (map[string]any, error) {
	casterRoll, err := d.dice.Evaluate(abilityRollNotation(ability.Die, caster.StatValue(ability.PowerSource), caster.Edge))
	if err != nil {
		return nil, model.WrapDomainError(model.KindInternal, "resolving buff/debuff roll", err)
	}
	targetRoll, err := d.dice.Evaluate(abilityRollNotation(t.Snapshot.DefenseDie, t.Snapshot.PP, t.Snapshot.Edge))
	if err != nil {
		return nil, model.WrapDomainError(model.KindInternal, "resolving buff/debuff contest", err)
	}

	margin := casterRoll.Total - targetRoll.Total
	success := margin > 0
	duration := 0
	if success {
		duration = margin
		if duration > 6 {
			duration = 6
		}
	}

	return map[string]any{
		"target": t.Mention.Name, "kind": string(ability.Effect), "success": success, "duration_rounds": duration,
	}, nil
}

// resolveAbilityUtility implements the open/no-DP-change utility effect
// ("contested or open roll; no DP change"). Baseline resolution is an
// open roll — there is no canonical opposing target for a utility ability.
func (d *Dispatcher) resolveAbilityUtility(caster *model.Snapshot, ability *model.Ability) (map[string]any, error) {
	notation := abilityRollNotation(ability.Die, caster.StatValue(ability.PowerSource), caster.Edge)
	res, err := d.dice.Evaluate(notation)
	if err != nil {
		return nil, model.WrapDomainError(model.KindInternal, "resolving utility roll", err)
	}
	return map[string]any{"roll": res.Total}, nil
}
