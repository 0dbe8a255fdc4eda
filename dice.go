package main

import (
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

var (
	diceEmojis      = []string{"⚀", "⚁", "⚂", "⚃", "⚄", "⚅"}
	animationFrames = []string{"🎲", "🎯", "⭐", "✨", "💫", "🌟"}
)

func (a *App) handleRoll(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := commandOptions(i)
	sides, count := 6, 1
	if o, ok := opts["sides"]; ok {
		sides = int(o.IntValue())
	}
	if o, ok := opts["count"]; ok {
		count = int(o.IntValue())
	}

	ephemeralReply(s, i, fmt.Sprintf("🎲 Rolling %d %d-sided dice... %s", count, sides, animationFrames[0]))
	for _, frame := range animationFrames[1:] {
		time.Sleep(300 * time.Millisecond)
		editReply(s, i, fmt.Sprintf("🎲 Rolling %d %d-sided dice... %s", count, sides, frame))
	}
	// Shorter than this and Discord can apply the edits out of order.
	time.Sleep(500 * time.Millisecond)

	results := make([]int, count)
	total := 0
	for n := range results {
		results[n] = rand.Intn(sides) + 1
		total += results[n]
	}

	editReply(s, i, formatRollResults(sides, count, results, total))
	log.Printf("Dice roll: %dd%d = %v (total: %d)", count, sides, results, total)
}

func formatRollResults(sides, count int, results []int, total int) string {
	var b strings.Builder
	b.WriteString("🎲 **Dice Roll Results!** 🎲\n")

	if count == 1 {
		if sides == 6 {
			fmt.Fprintf(&b, "%s **You rolled: %d**", diceEmojis[results[0]-1], results[0])
		} else {
			fmt.Fprintf(&b, "🎯 **You rolled: %d** (d%d)", results[0], sides)
		}
	} else {
		rolls := make([]string, len(results))
		for n, r := range results {
			rolls[n] = strconv.Itoa(r)
		}
		fmt.Fprintf(&b, "🎯 **Individual rolls:** %s\n", strings.Join(rolls, ", "))
		fmt.Fprintf(&b, "✨ **Total:** %d", total)
		fmt.Fprintf(&b, "\n📊 **Average:** %.1f", float64(total)/float64(count))
	}

	if sides == 6 {
		if rollsContain(results, 6) {
			b.WriteString("\n🌟 *Nice! You got a 6!*")
		}
		if rollsContain(results, 1) {
			b.WriteString("\n😅 *Ouch, a 1...*")
		}
		if count > 1 && rollsAll(results, 6) {
			b.WriteString("\n🎉 **AMAZING! ALL SIXES!** 🎉")
		}
		if count > 1 && rollsAll(results, 1) {
			b.WriteString("\n💀 *Yikes... all ones. Better luck next time!*")
		}
	}
	return b.String()
}

func rollsContain(rolls []int, v int) bool {
	for _, r := range rolls {
		if r == v {
			return true
		}
	}
	return false
}

func rollsAll(rolls []int, v int) bool {
	for _, r := range rolls {
		if r != v {
			return false
		}
	}
	return true
}
