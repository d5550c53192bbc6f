package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/tta-solo/engine/internal/engine/ability"
	"github.com/tta-solo/engine/internal/engine/effect"
	"github.com/tta-solo/engine/internal/engine/entity"
	"github.com/tta-solo/engine/internal/engine/event"
	"github.com/tta-solo/engine/internal/engine/physics"
	"github.com/tta-solo/engine/internal/engine/quest"
	"github.com/tta-solo/engine/internal/engine/resource"
	"github.com/tta-solo/engine/internal/engine/router"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
	"github.com/tta-solo/engine/internal/storage"
)

// session is one player's live connection to a universe. Slash commands
// map one-to-one onto the structured intents the router accepts; free
// text is not interpreted.
type session struct {
	router   *router.Router
	truth    storage.TruthRepo
	graph    storage.GraphRepo
	states   effect.StateStore
	out      io.Writer
	universe string
	actor    string
	kit      []*ability.Ability
	quit     bool
}

func (s *session) greet(ctx context.Context) {
	fmt.Fprintln(s.out, "A text adventure with real dice. /help lists commands; /quit leaves.")
	if err := s.resolve(ctx, router.Intent{Type: router.IntentLook}); err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
	}
}

func (s *session) loop(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for !s.quit {
		if ctx.Err() != nil {
			fmt.Fprintln(s.out)
			return nil
		}
		fmt.Fprint(s.out, "> ")
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			fmt.Fprintln(s.out, "Commands start with a slash; try /help.")
			continue
		}
		if err := s.dispatch(ctx, strings.TrimPrefix(line, "/")); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
	return sc.Err()
}

func (s *session) dispatch(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "help", "h", "?":
		s.printHelp()
	case "quit", "exit", "q":
		s.quit = true
		fmt.Fprintln(s.out, "Until next time.")
	case "look", "l":
		return s.resolve(ctx, router.Intent{Type: router.IntentLook})
	case "go", "move":
		if len(args) == 0 {
			fmt.Fprintln(s.out, "usage: /go <direction>")
			return nil
		}
		return s.resolve(ctx, router.Intent{Type: router.IntentMove, Direction: strings.ToLower(args[0])})
	case "exits":
		return s.printExits(ctx)
	case "talk":
		return s.targeted(ctx, router.IntentTalk, args, "/talk <name>")
	case "attack", "a":
		return s.targeted(ctx, router.IntentAttack, args, "/attack <name>")
	case "persuade":
		return s.targeted(ctx, router.IntentPersuade, args, "/persuade <name>")
	case "intimidate":
		return s.targeted(ctx, router.IntentIntimidate, args, "/intimidate <name>")
	case "deceive":
		return s.targeted(ctx, router.IntentDeceive, args, "/deceive <name>")
	case "search":
		return s.resolve(ctx, router.Intent{Type: router.IntentSearch})
	case "use":
		return s.use(ctx, args)
	case "pickup", "take", "get":
		if len(args) == 0 {
			fmt.Fprintln(s.out, "usage: /pickup <item>")
			return nil
		}
		return s.resolve(ctx, router.Intent{Type: router.IntentPickUp, Item: strings.Join(args, " ")})
	case "drop":
		if len(args) == 0 {
			fmt.Fprintln(s.out, "usage: /drop <item>")
			return nil
		}
		return s.resolve(ctx, router.Intent{Type: router.IntentDrop, Item: strings.Join(args, " ")})
	case "give":
		item, who := splitOn(args)
		if item == "" || who == "" {
			fmt.Fprintln(s.out, "usage: /give <item> to <name>")
			return nil
		}
		return s.resolve(ctx, router.Intent{Type: router.IntentGive, Item: item, Target: who})
	case "rest":
		kind := "short"
		if len(args) > 0 {
			kind = strings.ToLower(args[0])
		}
		return s.resolve(ctx, router.Intent{Type: router.IntentRest, Text: kind})
	case "wait":
		return s.resolve(ctx, router.Intent{Type: router.IntentWait})
	case "round":
		return s.startRound(ctx)
	case "heroic":
		return s.heroic(ctx)
	case "status", "st":
		return s.printStatus(ctx)
	case "inventory", "inv", "i":
		return s.printInventory(ctx)
	case "quests", "journal", "j":
		return s.printQuests(ctx, len(args) > 0 && strings.ToLower(args[0]) == "all")
	case "abilities", "ab":
		return s.printAbilities(ctx)
	case "reputation", "rep":
		return s.printReputation(ctx)
	case "history":
		n := 10
		if len(args) > 0 {
			if v, err := strconv.Atoi(args[0]); err == nil && v > 0 {
				n = v
			}
		}
		return s.printHistory(ctx, n)
	case "save":
		if err := s.truth.Commit(ctx, "manual save"); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "Saved.")
	case "fork":
		return s.fork(ctx, args)
	case "universes", "timelines":
		return s.printUniverses(ctx)
	case "switch":
		return s.switchUniverse(ctx, args)
	case "setting":
		return s.setting(ctx, args)
	case "clear", "cls":
		fmt.Fprint(s.out, "\033[2J\033[H")
	default:
		fmt.Fprintf(s.out, "Unknown command /%s; try /help.\n", cmd)
	}
	return nil
}

// targeted handles the commands whose only argument is a target name.
func (s *session) targeted(ctx context.Context, t router.IntentType, args []string, usage string) error {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "usage: "+usage)
		return nil
	}
	return s.resolve(ctx, router.Intent{Type: t, Target: strings.Join(args, " ")})
}

// use routes /use: a registered ability resolves as an ability,
// anything else is tried as an item from the pack.
func (s *session) use(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "usage: /use <ability or item> [on <target>]")
		return nil
	}
	thing, target := splitOn(args)
	if s.knownAbility(thing) {
		return s.resolve(ctx, router.Intent{Type: router.IntentUseAbility, Ability: thing, Target: target})
	}
	return s.resolve(ctx, router.Intent{Type: router.IntentUseItem, Item: thing, Target: target})
}

func (s *session) knownAbility(ref string) bool {
	for _, ab := range s.kit {
		if ab.ID == ref || strings.EqualFold(ab.Name, ref) {
			return true
		}
	}
	return false
}

// splitOn breaks "<thing> on <target>" into its halves; "at" and "to"
// work the same way.
func splitOn(args []string) (thing, target string) {
	for i, a := range args {
		switch strings.ToLower(a) {
		case "on", "at", "to":
			return strings.Join(args[:i], " "), strings.Join(args[i+1:], " ")
		}
	}
	return strings.Join(args, " "), ""
}

func (s *session) resolve(ctx context.Context, intent router.Intent) error {
	intent.ActorID = s.actor
	res, err := s.router.Resolve(ctx, s.universe, intent)
	if err != nil {
		return err
	}
	s.render(res.Result)
	return nil
}

func (s *session) render(res *router.SkillResult) {
	if res == nil {
		return
	}
	if res.Narrative != "" {
		fmt.Fprintln(s.out, res.Narrative)
	}
	if res.Total != 0 {
		line := fmt.Sprintf("  [rolled %d, total %d", res.Roll, res.Total)
		if res.DC != 0 {
			line += fmt.Sprintf(" vs DC %d", res.DC)
		}
		line += fmt.Sprintf(": %s]", strings.ReplaceAll(string(res.Outcome), "_", " "))
		if res.Critical {
			line += " critical!"
		}
		if res.Fumble {
			line += " fumble!"
		}
		fmt.Fprintln(s.out, line)
	}
	if !res.Success && res.Reason != "" {
		fmt.Fprintf(s.out, "  (%s)\n", res.Reason)
	}
	for _, c := range res.StateChanges {
		fmt.Fprintf(s.out, "  * %s\n", c)
	}
	if res.GMMove != nil && res.GMMove.Narrative != "" {
		fmt.Fprintf(s.out, "GM: %s\n", res.GMMove.Narrative)
	}
}

// fork branches the timeline and drops the session into the child.
func (s *session) fork(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "usage: /fork <name for the new timeline>")
		return nil
	}
	name := strings.Join(args, " ")
	res, err := s.router.Resolve(ctx, s.universe, router.Intent{
		Type:     router.IntentFork,
		ActorID:  s.actor,
		ForkName: name,
		Text:     name,
	})
	if err != nil {
		return err
	}
	s.render(res.Result)
	if res.Result == nil {
		return nil
	}
	for _, c := range res.Result.StateChanges {
		if strings.HasPrefix(c, "universe ") {
			s.universe = strings.TrimPrefix(c, "universe ")
			fmt.Fprintf(s.out, "Now playing in %q. /switch returns to another timeline.\n", name)
		}
	}
	return nil
}

func (s *session) switchUniverse(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "usage: /switch <universe id>")
		return nil
	}
	u, err := s.truth.Universe(ctx, args[0])
	if err != nil {
		return err
	}
	if !u.Active() {
		return apperrors.New(apperrors.CodeUniverseNotActive, fmt.Sprintf("universe %s is %s", u.ID, u.Status))
	}
	s.universe = u.ID
	fmt.Fprintf(s.out, "Now playing in %q.\n", u.Name)
	return nil
}

// setting shows the physics of the current universe, or bends them to a
// named preset.
func (s *session) setting(ctx context.Context, args []string) error {
	if len(args) == 0 {
		o := s.router.Overlay(s.universe)
		if o == nil {
			fmt.Fprintf(s.out, "Standard physics. /setting <name> bends them; presets: %s.\n",
				strings.Join(physics.PresetNames(), ", "))
			return nil
		}
		fmt.Fprintf(s.out, "%s physics.\n", o.Name)
		for _, src := range o.Enhanced {
			fmt.Fprintf(s.out, "  %s abilities roll an extra damage die\n", src)
		}
		for _, src := range o.Restricted {
			fmt.Fprintf(s.out, "  %s abilities save at %+d DC\n", src, o.SaveShift(src))
		}
		for _, src := range o.Forbidden {
			fmt.Fprintf(s.out, "  %s abilities do not function here\n", src)
		}
		return nil
	}
	slug := strings.ToLower(strings.Join(args, "-"))
	o, ok := physics.Preset(slug)
	if !ok {
		return apperrors.New(apperrors.CodeNotFound,
			fmt.Sprintf("no setting %q; presets: %s", slug, strings.Join(physics.PresetNames(), ", ")))
	}
	o.UniverseID = s.universe
	s.router.SetOverlay(s.universe, o)
	fmt.Fprintf(s.out, "Physics bend toward %s.\n", o.Name)
	return nil
}

func (s *session) startRound(ctx context.Context) error {
	rs, err := s.router.StartCombatRound(ctx, s.universe, s.actor)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Round %d begins.", rs.Round)
	if rs.MomentumGained > 0 {
		fmt.Fprintf(s.out, " Momentum +%d.", rs.MomentumGained)
	}
	fmt.Fprintln(s.out)
	if rs.Fray != nil {
		fmt.Fprintf(s.out, "Fray %s rolls %d.\n", rs.Fray.Die, rs.Fray.Roll)
		for _, hit := range rs.Fray.Hits {
			note := ""
			if hit.Killed {
				note = " and falls"
			}
			fmt.Fprintf(s.out, "  * %s takes %d%s\n", s.entityName(ctx, hit.EnemyID), hit.Damage, note)
		}
	}
	for _, rc := range rs.Recharges {
		if rc.Recharged {
			fmt.Fprintf(s.out, "%s recharges (rolled %d).\n", rc.Name, rc.Rolled)
		} else {
			fmt.Fprintf(s.out, "%s stays spent (rolled %d).\n", rc.Name, rc.Rolled)
		}
	}
	return nil
}

func (s *session) heroic(ctx context.Context) error {
	hr, err := s.router.HeroicAction(ctx, s.universe, s.actor)
	if err != nil {
		return err
	}
	if hr.PaidMomentum {
		fmt.Fprintln(s.out, "You spend momentum and seize an extra action.")
		return nil
	}
	fmt.Fprintf(s.out, "You push past your limits: stress +%d.\n", hr.StressAdded)
	if hr.BreakingPoint {
		fmt.Fprintln(s.out, "You have hit your breaking point.")
	}
	return nil
}

func (s *session) printStatus(ctx context.Context) error {
	e, err := s.truth.Entity(ctx, s.universe, s.actor)
	if err != nil {
		return err
	}
	c := e.Character
	if c == nil {
		fmt.Fprintln(s.out, e.Name)
		return nil
	}
	fmt.Fprintf(s.out, "%s, level %d (%d xp, %d gold)\n", e.Name, c.Level, c.Experience, c.Gold)
	fmt.Fprintf(s.out, "HP %d/%d", c.HP, c.HPMax)
	if c.HPTemp > 0 {
		fmt.Fprintf(s.out, " (+%d temp)", c.HPTemp)
	}
	fmt.Fprintf(s.out, "  AC %d  speed %d\n", c.AC, c.Speed)
	a := c.Abilities
	fmt.Fprintf(s.out, "STR %d (%+d)  DEX %d (%+d)  CON %d (%+d)  INT %d (%+d)  WIS %d (%+d)  CHA %d (%+d)\n",
		a.Strength, entity.Modifier(a.Strength), a.Dexterity, entity.Modifier(a.Dexterity),
		a.Constitution, entity.Modifier(a.Constitution), a.Intelligence, entity.Modifier(a.Intelligence),
		a.Wisdom, entity.Modifier(a.Wisdom), a.Charisma, entity.Modifier(a.Charisma))
	if p := c.Resources; p != nil {
		fmt.Fprintf(s.out, "stress %d/%d  momentum %d/%d  defy death %d left\n",
			p.Meter.Stress, p.Meter.StressMax, p.Meter.Momentum, p.Meter.MomentumMax,
			p.DefyDeath.MaxPerDay-p.DefyDeath.UsesToday)
		if p.Solo.Round > 0 {
			fmt.Fprintf(s.out, "round %d  action used: %t  bonus used: %t\n",
				p.Solo.Round, p.Solo.ActionUsed, p.Solo.BonusUsed)
		}
	}
	cs, err := s.states.CombatState(ctx, s.universe, e.ID)
	if err == nil && len(cs.Conditions) > 0 {
		names := make([]string, 0, len(cs.Conditions))
		for _, inst := range cs.Conditions {
			label := string(inst.Type)
			if inst.Remaining > 0 {
				label += fmt.Sprintf(" (%d left)", inst.Remaining)
			}
			names = append(names, label)
		}
		fmt.Fprintf(s.out, "conditions: %s\n", strings.Join(names, ", "))
	}
	return nil
}

func (s *session) printExits(ctx context.Context) error {
	loc, err := s.location(ctx)
	if err != nil {
		return err
	}
	if loc.Location == nil || len(loc.Location.Exits) == 0 {
		fmt.Fprintln(s.out, "No obvious exits.")
		return nil
	}
	dirs := make([]string, 0, len(loc.Location.Exits))
	for d := range loc.Location.Exits {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	for _, d := range dirs {
		fmt.Fprintf(s.out, "%s: %s\n", d, s.entityName(ctx, loc.Location.Exits[d]))
	}
	return nil
}

// location resolves the actor's current location the same way a turn
// does: follow the LOCATED_IN edge into the truth store.
func (s *session) location(ctx context.Context) (*entity.Entity, error) {
	rels, err := s.graph.Relationships(ctx, s.universe, s.actor)
	if err != nil {
		return nil, err
	}
	for _, r := range rels {
		if r.Type == storage.RelLocatedIn && r.FromID == s.actor {
			return s.truth.Entity(ctx, s.universe, r.ToID)
		}
	}
	return nil, apperrors.New(apperrors.CodeNotFound, "you are nowhere at all")
}

func (s *session) printInventory(ctx context.Context) error {
	rels, err := s.graph.Relationships(ctx, s.universe, s.actor)
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(rels))
	for _, r := range rels {
		if r.FromID != s.actor {
			continue
		}
		var tag string
		switch r.Type {
		case storage.RelCarries:
		case storage.RelWields:
			tag = " (wielded)"
		case storage.RelWears:
			tag = " (worn)"
		default:
			continue
		}
		lines = append(lines, "- "+s.describeItem(ctx, r.ToID)+tag)
	}
	if len(lines) == 0 {
		fmt.Fprintln(s.out, "You carry nothing.")
		return nil
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(s.out, l)
	}
	return nil
}

func (s *session) describeItem(ctx context.Context, id string) string {
	e, err := s.truth.Entity(ctx, s.universe, id)
	if err != nil {
		return id
	}
	name := e.Name
	if e.Item == nil {
		return name
	}
	switch {
	case e.Item.DamageDice != "":
		name += fmt.Sprintf(" [%s %s]", e.Item.DamageDice, e.Item.DamageType)
	case e.Item.ACBonus > 0:
		name += fmt.Sprintf(" [+%d AC]", e.Item.ACBonus)
	}
	return name
}

func (s *session) printQuests(ctx context.Context, all bool) error {
	qs, err := s.truth.ListQuests(ctx, s.universe)
	if err != nil {
		return err
	}
	sort.Slice(qs, func(i, j int) bool { return qs[i].Title < qs[j].Title })
	shown, hidden := 0, 0
	for _, q := range qs {
		if !all && q.Status != quest.StatusActive {
			hidden++
			continue
		}
		shown++
		fmt.Fprintf(s.out, "[%s] %s\n", q.Status, q.Title)
		for i, obj := range q.Objectives {
			mark := " "
			switch {
			case obj.Progress >= obj.Required:
				mark = "x"
			case i == q.Current:
				mark = ">"
			}
			fmt.Fprintf(s.out, "  [%s] %s (%d/%d)\n", mark, obj.Description, obj.Progress, obj.Required)
		}
		if q.Reward.XP > 0 || q.Reward.Gold > 0 {
			fmt.Fprintf(s.out, "  reward: %d xp, %d gold\n", q.Reward.XP, q.Reward.Gold)
		}
	}
	if shown == 0 {
		fmt.Fprintln(s.out, "No active quests.")
	}
	if !all && hidden > 0 {
		fmt.Fprintf(s.out, "(%d more; /quests all shows everything)\n", hidden)
	}
	return nil
}

func (s *session) printAbilities(ctx context.Context) error {
	e, err := s.truth.Entity(ctx, s.universe, s.actor)
	if err != nil {
		return err
	}
	var pool *resource.Pool
	if e.Character != nil {
		pool = e.Character.Resources
	}
	for _, ab := range s.kit {
		line := fmt.Sprintf("- %s (%s): %s", ab.Name, ab.Cost, abilitySummary(ab))
		if note := usesNote(pool, ab); note != "" {
			line += " " + note
		}
		fmt.Fprintln(s.out, line)
	}
	return nil
}

func abilitySummary(ab *ability.Ability) string {
	var parts []string
	if ab.Damage != nil {
		parts = append(parts, fmt.Sprintf("%s %s damage", ab.Damage.Dice, ab.Damage.DamageType))
	}
	if ab.Healing != nil {
		h := "heals " + ab.Healing.Dice
		if ab.Healing.Dice == "" {
			h = fmt.Sprintf("heals %d", ab.Healing.Flat)
		} else if ab.Healing.Flat > 0 {
			h += fmt.Sprintf("+%d", ab.Healing.Flat)
		}
		parts = append(parts, h)
	}
	if ab.Condition != nil {
		parts = append(parts, "inflicts "+ab.Condition.Condition)
	}
	if ab.StatModifier != nil {
		parts = append(parts, fmt.Sprintf("%+d %s", ab.StatModifier.Modifier, ab.StatModifier.Stat))
	}
	if len(parts) == 0 {
		return ab.Description
	}
	return strings.Join(parts, ", ")
}

func usesNote(pool *resource.Pool, ab *ability.Ability) string {
	if pool == nil {
		return ""
	}
	key := ab.ID
	if key == "" {
		key = strings.ToLower(ab.Name)
	}
	switch ab.Mechanism {
	case ability.MechanismCooldown:
		if cd, ok := pool.Cooldowns[key]; ok {
			return fmt.Sprintf("[%d/%d uses]", cd.Remaining, cd.MaxUses)
		}
	case ability.MechanismUsageDie:
		if ud, ok := pool.UsageDice[key]; ok {
			if ud.Depleted {
				return "[depleted]"
			}
			return fmt.Sprintf("[usage %s]", ud.Current)
		}
	}
	return ""
}

func (s *session) printReputation(ctx context.Context) error {
	e, err := s.truth.Entity(ctx, s.universe, s.actor)
	if err != nil {
		return err
	}
	if e.Character == nil || len(e.Character.Reputation) == 0 {
		fmt.Fprintln(s.out, "No one has an opinion of you yet.")
		return nil
	}
	type standing struct {
		name  string
		score int
	}
	rows := make([]standing, 0, len(e.Character.Reputation))
	for fid, score := range e.Character.Reputation {
		rows = append(rows, standing{name: s.entityName(ctx, fid), score: score})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })
	for _, row := range rows {
		fmt.Fprintf(s.out, "%s: %+d (%s)\n", row.name, row.score, entity.ReputationTier(row.score))
	}
	return nil
}

func (s *session) printHistory(ctx context.Context, n int) error {
	evs, err := s.truth.ListEvents(ctx, s.universe, n)
	if err != nil {
		return err
	}
	if len(evs) == 0 {
		fmt.Fprintln(s.out, "Nothing has happened yet.")
		return nil
	}
	for _, ev := range evs {
		fmt.Fprintf(s.out, "%4d  %s\n", ev.Seq, eventLine(ev))
	}
	return nil
}

func eventLine(ev *event.Event) string {
	parts := []string{string(ev.Type)}
	if ev.TargetID != "" {
		parts = append(parts, "on "+ev.TargetID)
	}
	if ev.Outcome != "" {
		parts = append(parts, strings.ToLower(string(ev.Outcome)))
	}
	if ev.Roll != nil {
		parts = append(parts, fmt.Sprintf("(rolled %d)", *ev.Roll))
	}
	return strings.Join(parts, " ")
}

func (s *session) printUniverses(ctx context.Context) error {
	us, err := s.truth.ListUniverses(ctx)
	if err != nil {
		return err
	}
	sort.Slice(us, func(i, j int) bool {
		if us[i].Depth != us[j].Depth {
			return us[i].Depth < us[j].Depth
		}
		return us[i].ID < us[j].ID
	})
	for _, u := range us {
		marker := " "
		if u.ID == s.universe {
			marker = "*"
		}
		line := fmt.Sprintf("%s %s  %q (%s)", marker, u.ID, u.Name, u.Status)
		if u.ParentID != "" {
			line += " fork of " + u.ParentID
		}
		fmt.Fprintln(s.out, line)
	}
	return nil
}

// entityName resolves an id for display, falling back to the id itself.
func (s *session) entityName(ctx context.Context, id string) string {
	if e, err := s.truth.Entity(ctx, s.universe, id); err == nil {
		return e.Name
	}
	return id
}

func (s *session) printHelp() {
	fmt.Fprint(s.out, `Exploring
  /look              describe where you are
  /go <direction>    travel through an exit (/exits lists them)
  /search            search the area
  /pickup <item>     take something from the location
  /drop <item>       leave something behind

People
  /talk <name>       strike up a conversation
  /persuade <name>   make your case (Charisma check)
  /intimidate <name> lean on someone
  /deceive <name>    lie with a straight face
  /give <item> to <name>

Fighting
  /attack <name>     swing at a target
  /use <ability or item> [on <target>]
  /round             start a combat round (fray die, recharges)
  /heroic            buy an extra action with momentum or stress
  /rest [short|long] recover hit dice, slots, and cooldowns

Yourself
  /status /inventory /quests [all] /abilities /reputation /history [n]

Timelines
  /fork <name>       branch the universe at this moment
  /universes         list timelines; /switch <id> changes to one
  /setting [name]    show or bend this universe's physics
  /save              commit state on persistent backends

/clear wipes the screen; /quit leaves the game.
`)
}
