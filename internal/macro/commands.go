package macro

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tbrpg/partyhub/internal/encounter"
	"github.com/tbrpg/partyhub/internal/model"
	"github.com/tbrpg/partyhub/internal/proto"
	"github.com/tbrpg/partyhub/internal/store"
)

// usageError builds a CommandUsageError carrying a "Usage: ..." reply.
func usageError(usage string) error {
	return model.NewDomainError(model.KindUsage, "Usage: "+usage)
}

// handleRoll implements `/roll <notation>`.
func handleRoll(ctx context.Context, d *Dispatcher, req Request, args string) (Result, error) {
	if args == "" {
		return Result{}, usageError("/roll <notation, e.g. 2d6+3>")
	}

	res, err := d.dice.Evaluate(args)
	if err != nil {
		return Result{}, model.WrapDomainError(model.KindUsage, "invalid dice notation: "+args, err)
	}

	frame := proto.DiceRollFrame{
		Type:      "dice_roll",
		Actor:     req.SenderName,
		Dice:      args,
		Breakdown: res.Rolls,
		Modifier:  res.Modifier,
		Result:    res.Total,
		Text:      formatRollText(args, res.Rolls, res.Modifier, res.Total),
		PartyID:   req.PartyID,
		Timestamp: req.Now,
	}

	out := Result{Broadcast: frame}
	if d.shouldPersist(kindDiceRoll) {
		out.Persist = chatRow(req, model.MessageDiceRoll, frame.Text, map[string]any{
			"dice": args, "breakdown": res.Rolls, "modifier": res.Modifier, "result": res.Total,
		})
	}
	return out, nil
}

func formatRollText(notation string, rolls []int, modifier, total int) string {
	if len(rolls) == 0 {
		return fmt.Sprintf("%s → %d", notation, total)
	}
	parts := make([]string, len(rolls))
	for i, r := range rolls {
		parts[i] = strconv.Itoa(r)
	}
	sum := strings.Join(parts, " + ")
	if modifier != 0 {
		return fmt.Sprintf("%s → (%s) %+d = %d", notation, sum, modifier, total)
	}
	return fmt.Sprintf("%s → (%s) = %d", notation, sum, total)
}

// statCheckNotation builds "1d6+K" for a stat check, where K = stat + edge
// ("/pp, /ip, /sp": "1d6 + stat + edge").
func statCheckNotation(stat, edge int) (string, int) {
	k := stat + edge
	return fmt.Sprintf("1d6%+d", k), k
}

// handleStatCheck implements `/pp`, `/ip`, `/sp`. Uses the cached
// snapshot's stat and edge if the sender is bound; otherwise a placeholder
// of edge=1, stat=0 per spec.
func handleStatCheck(ctx context.Context, d *Dispatcher, req Request, args string) (Result, error) {
	letter := strings.ToUpper(strings.TrimPrefix(strings.Fields(req.Text)[0], "/"))

	statValue, edge := 0, 1
	if req.CharacterID != "" {
		if snap, ok := d.cache.Get(req.PartyID, req.CharacterID); ok {
			statValue, edge = snap.StatValue(letter), snap.Edge
		}
	}

	notation, k := statCheckNotation(statValue, edge)
	res, err := d.dice.Evaluate(notation)
	if err != nil {
		return Result{}, model.WrapDomainError(model.KindInternal, "evaluating stat check", err)
	}

	frame := proto.StatRollFrame{
		DiceRollFrame: proto.DiceRollFrame{
			Type:      "stat_roll",
			Actor:     req.SenderName,
			Dice:      notation,
			Breakdown: res.Rolls,
			Modifier:  k,
			Result:    res.Total,
			Text:      formatRollText(notation, res.Rolls, k, res.Total),
			PartyID:   req.PartyID,
			Timestamp: req.Now,
		},
		Stat: letter,
	}

	out := Result{Broadcast: frame}
	if d.shouldPersist(kindDiceRoll) {
		out.Persist = chatRow(req, model.MessageDiceRoll, frame.Text, map[string]any{
			"stat": letter, "dice": notation, "breakdown": res.Rolls, "modifier": k, "result": res.Total,
		})
	}
	return out, nil
}

// handleInitiative implements every `/initiative ...` variant.
func handleInitiative(ctx context.Context, d *Dispatcher, req Request, args string) (Result, error) {
	fields := strings.Fields(args)

	switch {
	case len(fields) == 0:
		return rollInitiativeForSender(ctx, d, req, false)
	case strings.EqualFold(fields[0], "show"):
		return showInitiative(ctx, d, req)
	case strings.EqualFold(fields[0], "end"):
		if !req.IsSW {
			return d.swOnlyViolation("/initiative end")
		}
		return endInitiative(ctx, d, req)
	case strings.EqualFold(fields[0], "clear"):
		if !req.IsSW {
			return d.swOnlyViolation("/initiative clear")
		}
		return clearInitiative(ctx, d, req)
	case strings.EqualFold(fields[0], "silent"):
		if !req.IsSW {
			return d.swOnlyViolation("/initiative silent")
		}
		if len(fields) < 2 || !strings.HasPrefix(fields[1], "@") {
			return Result{}, usageError("/initiative silent @target")
		}
		return rollInitiativeForTarget(ctx, d, req, strings.Join(fields[1:], " "), true)
	case strings.HasPrefix(fields[0], "@"):
		if !req.IsSW {
			return d.swOnlyViolation("/initiative @target")
		}
		return rollInitiativeForTarget(ctx, d, req, args, false)
	default:
		return Result{}, usageError("/initiative [show|end|clear|@target|silent @target]")
	}
}

func rollInitiativeForSender(ctx context.Context, d *Dispatcher, req Request, silent bool) (Result, error) {
	if req.CharacterID == "" {
		return Result{}, model.NewDomainError(model.KindUsage, "you must be bound to a character to roll initiative")
	}
	snap, ok := d.cache.Get(req.PartyID, req.CharacterID)
	if !ok {
		return Result{}, model.WrapDomainError(model.KindInternal, "missing cache snapshot for bound character", fmt.Errorf("character %s", req.CharacterID))
	}

	result, err := d.dice.Evaluate(fmt.Sprintf("1d6+%d", snap.Edge))
	if err != nil {
		return Result{}, model.WrapDomainError(model.KindInternal, "rolling initiative", err)
	}

	// The bound snapshot may be an NPC (an SW socket acting as one); the
	// roll must land in the matching combatant column.
	var charID, npcID *string
	boundID := req.CharacterID
	if snap.Type == model.TargetNPC {
		npcID = &boundID
	} else {
		charID = &boundID
	}
	if err := d.encounter.Roll(ctx, req.PartyID, encounter.RollInput{
		CharacterID: charID,
		NPCID:       npcID,
		DisplayName: snap.Name,
		RollResult:  result.Total,
		Silent:      silent,
		RolledBySW:  false,
		BasePP:      snap.PP, BaseIP: snap.IP, BaseSP: snap.SP,
	}); err != nil {
		return Result{}, model.WrapDomainError(model.KindStore, "registering initiative roll", err)
	}

	frame := proto.InitiativeFrame{
		DiceRollFrame: proto.DiceRollFrame{
			Type: "initiative", Actor: req.SenderName, Dice: fmt.Sprintf("1d6+%d", snap.Edge),
			Breakdown: result.Rolls, Modifier: snap.Edge, Result: result.Total,
			Text: formatRollText(fmt.Sprintf("1d6+%d", snap.Edge), result.Rolls, snap.Edge, result.Total),
			PartyID: req.PartyID, Timestamp: req.Now,
		},
		Silent: silent, RolledBySW: false, CombatantName: snap.Name,
	}

	out := Result{Broadcast: frame}
	if d.shouldPersist(kindInitiative) {
		out.CombatPersist = combatRow(req, "initiative", map[string]any{
			"combatant": snap.Name, "roll": result.Total, "silent": silent,
		})
	}
	return out, nil
}

func rollInitiativeForTarget(ctx context.Context, d *Dispatcher, req Request, mentionText string, silent bool) (Result, error) {
	m, err := d.mention.ResolveSingle(ctx, mentionText, req.PartyID, req.IsSW, "")
	if err != nil {
		return Result{}, model.WrapDomainError(model.KindMention, "target not found. Use /who to see available targets.", err)
	}

	snap, err := d.loadTargetSnapshot(ctx, req.PartyID, m)
	if err != nil {
		return Result{}, model.WrapDomainError(model.KindInternal, "loading target", err)
	}

	result, err := d.dice.Evaluate(fmt.Sprintf("1d6+%d", snap.Edge))
	if err != nil {
		return Result{}, model.WrapDomainError(model.KindInternal, "rolling initiative", err)
	}

	var charID, npcID *string
	if m.Type == model.TargetCharacter {
		charID = &m.ID
	} else {
		npcID = &m.ID
	}

	if err := d.encounter.Roll(ctx, req.PartyID, encounter.RollInput{
		CharacterID: charID, NPCID: npcID,
		DisplayName: snap.Name, RollResult: result.Total,
		Silent: silent, RolledBySW: true,
		BasePP: snap.PP, BaseIP: snap.IP, BaseSP: snap.SP,
	}); err != nil {
		return Result{}, model.WrapDomainError(model.KindStore, "registering initiative roll", err)
	}

	frame := proto.InitiativeFrame{
		DiceRollFrame: proto.DiceRollFrame{
			Type: "initiative", Actor: req.SenderName, Dice: fmt.Sprintf("1d6+%d", snap.Edge),
			Breakdown: result.Rolls, Modifier: snap.Edge, Result: result.Total,
			Text: formatRollText(fmt.Sprintf("1d6+%d", snap.Edge), result.Rolls, snap.Edge, result.Total),
			PartyID: req.PartyID, Timestamp: req.Now,
		},
		Silent: silent, RolledBySW: true, CombatantName: snap.Name,
	}

	out := Result{Broadcast: frame}
	if d.shouldPersist(kindInitiative) {
		out.CombatPersist = combatRow(req, "initiative", map[string]any{
			"combatant": snap.Name, "roll": result.Total, "silent": silent, "rolled_by_sw": true,
		})
	}
	return out, nil
}

func showInitiative(ctx context.Context, d *Dispatcher, req Request) (Result, error) {
	rows, err := d.encounter.Show(ctx, req.PartyID, req.IsSW, req.CharacterID)
	if err != nil {
		return Result{}, err
	}

	// Hidden NPCs are omitted from a player's view of the roster;
	// the state machine filters silent entries but has no access to NPC
	// visibility, so that filter lives here.
	if !req.IsSW {
		npcs, err := d.store.ListPartyNPCs(ctx, req.PartyID, false)
		if err != nil {
			return Result{}, model.WrapDomainError(model.KindStore, "listing party npcs", err)
		}
		visible := make(map[string]bool, len(npcs))
		for _, n := range npcs {
			visible[n.ID] = true
		}
		filtered := make([]encounter.Row, 0, len(rows))
		for _, r := range rows {
			if !r.IsCharacter && !visible[r.CombatantID] {
				continue
			}
			filtered = append(filtered, r)
		}
		rows = filtered
	}
	if len(rows) == 0 {
		return Result{}, model.NewDomainError(model.KindState, "no visible initiative entries yet")
	}

	var b strings.Builder
	b.WriteString("Turn order: ")
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s (%d)", r.DisplayName, r.RollResult)
	}

	frame := proto.NewSystem(b.String(), req.PartyID, req.Now)
	return Result{Private: &frame}, nil
}

func endInitiative(ctx context.Context, d *Dispatcher, req Request) (Result, error) {
	if err := d.encounter.End(ctx, req.PartyID); err != nil {
		return Result{}, err
	}
	frame := proto.NewSystem("Encounter ended. Abilities restored.", req.PartyID, req.Now)
	out := Result{Broadcast: frame}
	if d.shouldPersist(kindSystem) {
		out.Persist = chatRow(req, model.MessageSystem, frame.Text, nil)
	}
	return out, nil
}

func clearInitiative(ctx context.Context, d *Dispatcher, req Request) (Result, error) {
	if err := d.encounter.Clear(ctx, req.PartyID); err != nil {
		return Result{}, err
	}
	frame := proto.NewSystem("Encounter cleared.", req.PartyID, req.Now)
	out := Result{Broadcast: frame}
	if d.shouldPersist(kindSystem) {
		out.Persist = chatRow(req, model.MessageSystem, frame.Text, nil)
	}
	return out, nil
}

// handleAttack implements `/attack @target`.
func handleAttack(ctx context.Context, d *Dispatcher, req Request, args string) (Result, error) {
	if req.CharacterID == "" {
		return Result{}, model.NewDomainError(model.KindUsage, "you must be bound to a character to attack")
	}
	if args == "" {
		return Result{}, usageError("/attack @target")
	}

	attacker, ok := d.cache.Get(req.PartyID, req.CharacterID)
	if !ok {
		return Result{}, model.WrapDomainError(model.KindInternal, "missing attacker snapshot", fmt.Errorf("character %s", req.CharacterID))
	}

	m, err := d.mention.ResolveSingle(ctx, args, req.PartyID, req.IsSW, "")
	if err != nil {
		return Result{}, model.WrapDomainError(model.KindMention, fmt.Sprintf("Target not found: %s. Use /who to see available targets.", args), err)
	}

	defender, err := d.loadTargetSnapshot(ctx, req.PartyID, m)
	if err != nil {
		return Result{}, model.WrapDomainError(model.KindInternal, "loading target", err)
	}

	// Basic attacks draw their attacker/defender stat contribution from PP
	// (physical power).
	atk, err := d.dice.ResolveMultiDieAttack(
		attacker.AttackStyle, attacker.PP, attacker.Edge,
		defender.DefenseDie, defender.PP, defender.Edge, false, attacker.BAP,
	)
	if err != nil {
		return Result{}, model.WrapDomainError(model.KindInternal, "resolving attack", err)
	}

	before := captureDPState(defender)
	defender.ApplyDamage(atk.TotalDamage)
	if err := d.writeThroughDP(ctx, m, defender); err != nil {
		restoreDPState(defender, before)
		return Result{}, model.WrapDomainError(model.KindStore, "persisting damage", err)
	}

	diceRolls := make([]proto.DieResultFrame, len(atk.Dice))
	for i, r := range atk.Dice {
		diceRolls[i] = proto.DieResultFrame{A: r.AttackRoll, D: atk.DefenseTotal, Margin: r.Margin, Damage: r.Damage}
	}

	frame := proto.CombatResultFrame{
		Type: "combat_result", Attacker: req.SenderName, Defender: m.Name,
		IndividualRolls: diceRolls, TotalDamage: atk.TotalDamage, Outcome: string(atk.Outcome),
		DefenderNewDP: defender.DP, Narrative: fmt.Sprintf("%s attacks %s for %d damage (%s).", req.SenderName, m.Name, atk.TotalDamage, atk.Outcome),
		PartyID: req.PartyID, Timestamp: req.Now,
	}

	out := Result{Broadcast: frame}
	if d.shouldPersist(kindAttack) {
		out.CombatPersist = combatRow(req, "attack", map[string]any{
			"defender": m.Name, "total_damage": atk.TotalDamage, "outcome": string(atk.Outcome),
		})
	}
	return out, nil
}

// handleWho implements `/who`: each online player's bound character, each
// offline member's last-known name, and visible NPCs — the SW additionally
// sees hidden NPCs.
func handleWho(ctx context.Context, d *Dispatcher, req Request, args string) (Result, error) {
	characters, err := d.store.ListPartyCharacters(ctx, req.PartyID)
	if err != nil {
		return Result{}, model.WrapDomainError(model.KindStore, "listing party characters", err)
	}
	npcs, err := d.store.ListPartyNPCs(ctx, req.PartyID, req.IsSW)
	if err != nil {
		return Result{}, model.WrapDomainError(model.KindStore, "listing party npcs", err)
	}

	online := make(map[string]bool)
	for _, snap := range d.cache.AllCharacters(req.PartyID) {
		online[snap.ID] = true
	}

	var b strings.Builder
	b.WriteString("Online: ")
	first := true
	for _, c := range characters {
		if !online[c.ID] {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		b.WriteString(c.Name)
		first = false
	}
	b.WriteString(". Offline: ")
	first = true
	for _, c := range characters {
		if online[c.ID] {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		b.WriteString(c.Name)
		first = false
	}
	b.WriteString(". NPCs: ")
	for i, n := range npcs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(n.Name)
	}

	frame := proto.NewSystem(b.String(), req.PartyID, req.Now)
	return Result{Private: &frame}, nil
}

func chatRow(req Request, msgType model.MessageType, content string, extra map[string]any) *model.ChatMessage {
	return &model.ChatMessage{
		PartyID:    req.PartyID,
		SenderID:   req.SenderUserID,
		SenderName: req.SenderName,
		Type:       msgType,
		Mode:       model.ModeNone,
		Content:    content,
		ExtraData:  extra,
		CreatedAt:  req.Now,
	}
}

// combatRow builds a structured combat-log row, distinct from the plain
// chat log.
func combatRow(req Request, kind string, extra map[string]any) *store.CombatTurn {
	return &store.CombatTurn{
		PartyID:   req.PartyID,
		ActorID:   req.SenderUserID,
		ActorName: req.SenderName,
		Kind:      kind,
		ExtraData: extra,
		CreatedAt: req.Now,
	}
}
