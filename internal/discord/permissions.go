package discord

import (
	"github.com/bwmarrin/discordgo"
)

// moderationPermissions are the guild permissions that grant control over
// other users' playback: skipping or cancelling tracks they requested.
const moderationPermissions = discordgo.PermissionAdministrator |
	discordgo.PermissionVoiceMoveMembers |
	discordgo.PermissionVoiceMuteMembers

// guildPermissions folds a member's role permissions at guild level. The
// guild owner implicitly holds every permission.
func guildPermissions(guild *discordgo.Guild, member *discordgo.Member) int64 {
	if member.User != nil && member.User.ID == guild.OwnerID {
		return discordgo.PermissionAll
	}

	var perms int64
	for _, role := range guild.Roles {
		if role.ID == guild.ID { // @everyone
			perms |= role.Permissions
		}
	}
	for _, roleID := range member.Roles {
		for _, role := range guild.Roles {
			if role.ID == roleID {
				perms |= role.Permissions
			}
		}
	}
	if perms&discordgo.PermissionAdministrator != 0 {
		return discordgo.PermissionAll
	}
	return perms
}

// isModerator reports whether the member holds a moderation permission in
// the guild.
func isModerator(guild *discordgo.Guild, member *discordgo.Member) bool {
	return guildPermissions(guild, member)&moderationPermissions != 0
}
