package world

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrUnknownCommand = errors.New("unknown command")

// Execute runs a console command against the registry. Supported:
//
//	tp <player> <targetPlayer>
//	tp <player> <x> <y> <z>
//	time set <ticks>
func (r *Registry) Execute(_ context.Context, command string) (string, error) {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(command), "/"))
	if len(fields) == 0 {
		return "", ErrUnknownCommand
	}

	switch strings.ToLower(fields[0]) {
	case "tp", "teleport":
		return r.teleport(fields[1:])
	case "time":
		return r.timeCommand(fields[1:])
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, fields[0])
	}
}

func (r *Registry) teleport(args []string) (string, error) {
	switch len(args) {
	case 2:
		who, ok := r.Lookup(args[0])
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownEntity, args[0])
		}
		target, ok := r.Lookup(args[1])
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownEntity, args[1])
		}
		if err := r.Move(who.ID, target.X, target.Y, target.Z, target.Region); err != nil {
			return "", err
		}
		return fmt.Sprintf("Teleported %s to %s", who.Name, target.Name), nil
	case 4:
		who, ok := r.Lookup(args[0])
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownEntity, args[0])
		}
		var coords [3]float64
		for i, raw := range args[1:] {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return "", fmt.Errorf("invalid coordinate %q", raw)
			}
			coords[i] = v
		}
		if err := r.Move(who.ID, coords[0], coords[1], coords[2], ""); err != nil {
			return "", err
		}
		return fmt.Sprintf("Teleported %s to %.2f, %.2f, %.2f", who.Name, coords[0], coords[1], coords[2]), nil
	default:
		return "", errors.New("usage: tp <player> <target> | tp <player> <x> <y> <z>")
	}
}

func (r *Registry) timeCommand(args []string) (string, error) {
	if len(args) != 2 || strings.ToLower(args[0]) != "set" {
		return "", errors.New("usage: time set <ticks>")
	}
	ticks, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid time %q", args[1])
	}
	r.SetWorldTime(ticks)
	return fmt.Sprintf("Set the time to %d", ticks%DayLength), nil
}
