package rbac

// Default policy. Admins hold everything; students hold the test-taking flow.
var RolePermissions = map[string][]string{
	"student": {
		"company:list",
		"test:start",
		"test:answer",
		"test:submit",
		"test:view-own",
		"report:generate",
		"report:view-own",
		"stats:own",
	},
	"admin": {
		"*", // everything
	},
}
