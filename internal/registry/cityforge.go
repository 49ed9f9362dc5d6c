package registry

import (
	"sync"

	"github.com/flarebyte/datamove/internal/store"
)

// userPublicColumns is the allow-list applied wherever a user row leaves the
// database in a redacted or embedded form.
var userPublicColumns = []string{"id", "email", "first_name", "last_name", "role", "is_active", "created_date", "last_login"}

func model(name, table string, rank int, fks ...ForeignKey) ModelSpec {
	return ModelSpec{
		Name:           name,
		Table:          table,
		Rank:           rank,
		PrimaryKey:     []string{"id"},
		SequenceColumn: "id",
		ForeignKeys:    fks,
	}
}

func ref(column, model string) ForeignKey { return ForeignKey{Column: column, Model: model} }

func userRelation(field, local string) store.Relation {
	return store.Relation{Field: field, Table: "users", Columns: userPublicColumns, LocalKey: local, RemoteKey: "id"}
}

func withRelations(m ModelSpec, rels ...store.Relation) ModelSpec {
	m.Export.Relations = rels
	return m
}

// CityForgeModels returns the model table for the CityForge schema, in declaration order.
func CityForgeModels() []ModelSpec {
	user := model("User", "users", 0)
	user.Export.Columns = userPublicColumns

	cardTags := model("card_tags", "card_tags", 2, ref("card_id", "Card"), ref("tag_id", "Tag"))
	cardTags.PrimaryKey = []string{"card_id", "tag_id"}
	cardTags.SequenceColumn = ""

	tokens := model("TokenBlacklist", "token_blacklist", 1, ref("user_id", "User"))
	tokens.Export.Withheld = true

	return []ModelSpec{
		user,
		model("Tag", "tags", 0),
		withRelations(model("Card", "cards", 1, ref("created_by", "User"), ref("approved_by", "User")),
			store.Relation{
				Field: "tags", Table: "tags", Columns: []string{"id", "name"},
				LocalKey: "id", RemoteKey: "id",
				Through: "card_tags", ThroughLocal: "card_id", ThroughRemote: "tag_id",
			},
			userRelation("creator", "created_by"),
		),
		cardTags,
		model("CardSubmission", "card_submissions", 2, ref("submitted_by", "User"), ref("reviewed_by", "User"), ref("card_id", "Card")),
		model("CardModification", "card_modifications", 2, ref("card_id", "Card"), ref("submitted_by", "User"), ref("reviewed_by", "User")),
		withRelations(model("Review", "reviews", 2, ref("card_id", "Card"), ref("user_id", "User"), ref("approved_by", "User")),
			store.Relation{Field: "card", Table: "cards", Columns: []string{"id", "name"}, LocalKey: "card_id", RemoteKey: "id"},
			userRelation("user", "user_id"),
		),
		model("ResourceCategory", "resource_categories", 0),
		withRelations(model("ResourceItem", "resource_items", 1, ref("category_id", "ResourceCategory")),
			store.Relation{Field: "resource_category", Table: "resource_categories", LocalKey: "category_id", RemoteKey: "id"},
		),
		model("QuickAccessItem", "quick_access_items", 0),
		model("ResourceConfig", "resource_config", 0),
		model("ForumCategory", "forum_categories", 1, ref("created_by", "User")),
		model("ForumCategoryRequest", "forum_category_requests", 2, ref("requested_by", "User"), ref("reviewed_by", "User"), ref("category_id", "ForumCategory")),
		withRelations(model("ForumThread", "forum_threads", 2, ref("category_id", "ForumCategory"), ref("created_by", "User")),
			store.Relation{Field: "category", Table: "forum_categories", Columns: []string{"id", "name", "slug"}, LocalKey: "category_id", RemoteKey: "id"},
		),
		withRelations(model("ForumPost", "forum_posts", 3, ref("thread_id", "ForumThread"), ref("created_by", "User"), ref("edited_by", "User")),
			store.Relation{Field: "thread", Table: "forum_threads", Columns: []string{"id", "title", "slug"}, LocalKey: "thread_id", RemoteKey: "id"},
		),
		model("ForumReport", "forum_reports", 4, ref("thread_id", "ForumThread"), ref("post_id", "ForumPost"), ref("reported_by", "User"), ref("reviewed_by", "User")),
		withRelations(model("HelpWantedPost", "help_wanted_posts", 1, ref("created_by", "User")),
			userRelation("creator", "created_by"),
		),
		model("HelpWantedComment", "help_wanted_comments", 2, ref("post_id", "HelpWantedPost"), ref("parent_id", "HelpWantedComment"), ref("created_by", "User")),
		model("HelpWantedReport", "help_wanted_reports", 2, ref("post_id", "HelpWantedPost"), ref("reported_by", "User"), ref("reviewed_by", "User")),
		model("IndexingJob", "indexing_jobs", 0),
		tokens,
		withRelations(model("SupportTicket", "support_tickets", 1, ref("created_by", "User"), ref("assigned_to", "User")),
			userRelation("creator", "created_by"),
		),
		model("SupportTicketMessage", "support_ticket_messages", 2, ref("ticket_id", "SupportTicket"), ref("created_by", "User")),
	}
}

// Default is the process-wide CityForge registry.
var Default = sync.OnceValue(func() *Registry {
	return MustNew(CityForgeModels()...)
})
