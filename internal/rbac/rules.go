package rbac

const (
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// RolePermissions is the default policy. Teachers only ever reach their own
// exams; ownership itself is enforced by the stores.
var RolePermissions = map[string][]string{
	RoleTeacher: {
		"exam:create",
		"exam:update_own",
		"exam:delete_own",
		"exam:view_own",
		"results:save",
		"results:view_own",
		"results:export",
		"grading:submit",
		"assets:upload",
		"assets:view",
		"user:change_password",
	},
	RoleAdmin: {
		"*",
	},
}
